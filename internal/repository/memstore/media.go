package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"memories-backend/internal/models"
	"memories-backend/internal/repository"
)

// Media is an in-memory media table
type Media struct {
	mu    sync.RWMutex
	byID  map[string]*models.Media
	clock func() time.Time
}

// NewMedia creates an empty media table stamped by time.Now
func NewMedia() *Media {
	return &Media{byID: make(map[string]*models.Media), clock: time.Now}
}

// WithClock replaces the clock used to stamp new rows
func (s *Media) WithClock(clock func() time.Time) *Media {
	s.clock = clock
	return s
}

func copyMedia(m *models.Media) *models.Media {
	c := *m
	c.ReceiverIDs = append([]string(nil), m.ReceiverIDs...)
	return &c
}

// Create inserts a media item. CreatedAt is kept when already set.
func (s *Media) Create(ctx context.Context, m *models.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[m.ID]; exists {
		return fmt.Errorf("failed to create media: %w", repository.ErrConflict)
	}
	if len(m.ReceiverIDs) == 0 {
		return fmt.Errorf("failed to create media: no receivers")
	}
	now := s.clock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.byID[m.ID] = copyMedia(m)
	return nil
}

// GetByID retrieves a media item by ID
func (s *Media) GetByID(ctx context.Context, id string) (*models.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.byID[id]; ok {
		return copyMedia(m), nil
	}
	return nil, fmt.Errorf("failed to get media: %w", repository.ErrNotFound)
}

// ListReceived returns items where userID is a receiver, newest first
func (s *Media) ListReceived(ctx context.Context, userID string, page repository.MediaPage) ([]*models.Media, error) {
	return s.list(page, func(m *models.Media) bool {
		return m.HasReceiver(userID) && (page.Counterpart == nil || m.SenderID == *page.Counterpart)
	}), nil
}

// ListSent returns items sent by userID, newest first
func (s *Media) ListSent(ctx context.Context, userID string, page repository.MediaPage) ([]*models.Media, error) {
	return s.list(page, func(m *models.Media) bool {
		return m.SenderID == userID && (page.Counterpart == nil || m.HasReceiver(*page.Counterpart))
	}), nil
}

func (s *Media) list(page repository.MediaPage, match func(*models.Media) bool) []*models.Media {
	s.mu.RLock()
	var out []*models.Media
	for _, m := range s.byID {
		if !match(m) {
			continue
		}
		if page.Before != nil && !belowCursor(m, *page.Before, page.BeforeID) {
			continue
		}
		out = append(out, copyMedia(m))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out
}

// belowCursor reports whether m sorts after the cursor in (created_at, id)
// descending order
func belowCursor(m *models.Media, before time.Time, beforeID *string) bool {
	if m.CreatedAt.Before(before) {
		return true
	}
	return beforeID != nil && m.CreatedAt.Equal(before) && m.ID < *beforeID
}
