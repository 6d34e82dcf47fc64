package memstore

import (
	"context"
	"sync"
	"time"

	"memories-backend/internal/models"

	"github.com/google/uuid"
)

// Statuses is an in-memory media_status table keyed by (media, user)
type Statuses struct {
	mu   sync.RWMutex
	rows map[[2]string]*models.MediaStatus
}

// NewStatuses creates an empty status table
func NewStatuses() *Statuses {
	return &Statuses{rows: make(map[[2]string]*models.MediaStatus)}
}

// UpsertSeen records that userID has seen mediaID
func (s *Statuses) UpsertSeen(ctx context.Context, mediaID, userID string, at time.Time) (*models.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{mediaID, userID}
	st, ok := s.rows[key]
	if !ok {
		st = &models.MediaStatus{ID: uuid.NewString(), MediaID: mediaID, UserID: userID}
		s.rows[key] = st
	}
	st.Status = models.StatusSeen
	st.SeenAt = &at
	c := *st
	return &c, nil
}

// ListSeen returns the subset of mediaIDs that userID has seen
func (s *Statuses) ListSeen(ctx context.Context, userID string, mediaIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var seen []string
	for _, id := range mediaIDs {
		if st, ok := s.rows[[2]string{id, userID}]; ok && st.Status == models.StatusSeen {
			seen = append(seen, id)
		}
	}
	return seen, nil
}

// Count returns the number of stored status rows
func (s *Statuses) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
