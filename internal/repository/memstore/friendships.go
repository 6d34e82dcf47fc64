package memstore

import (
	"context"
	"fmt"
	"sync"

	"memories-backend/internal/models"
	"memories-backend/internal/repository"
)

// Friendships is an in-memory friendship ledger. When Users is set the
// advisory friends lists are kept in step with it.
type Friendships struct {
	mu    sync.RWMutex
	byID  map[string]*models.Friendship
	users *Users
}

// NewFriendships creates an empty ledger. users may be nil.
func NewFriendships(users *Users) *Friendships {
	return &Friendships{byID: make(map[string]*models.Friendship), users: users}
}

// Create inserts a friendship under its key. A duplicate key yields ErrConflict.
func (s *Friendships) Create(ctx context.Context, f *models.Friendship) error {
	s.mu.Lock()
	if _, exists := s.byID[f.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("failed to create friendship: %w", repository.ErrConflict)
	}
	c := *f
	s.byID[f.ID] = &c
	s.mu.Unlock()

	if s.users != nil {
		s.users.link(f.UserAID, f.UserBID)
	}
	return nil
}

// GetByID retrieves a friendship by its key
func (s *Friendships) GetByID(ctx context.Context, id string) (*models.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.byID[id]; ok {
		c := *f
		return &c, nil
	}
	return nil, fmt.Errorf("failed to get friendship: %w", repository.ErrNotFound)
}

// ListByUserA returns the friendships where userID is stored on the A side
func (s *Friendships) ListByUserA(ctx context.Context, userID string) ([]*models.Friendship, error) {
	return s.list(func(f *models.Friendship) bool { return f.UserAID == userID }), nil
}

// ListByUserB returns the friendships where userID is stored on the B side
func (s *Friendships) ListByUserB(ctx context.Context, userID string) ([]*models.Friendship, error) {
	return s.list(func(f *models.Friendship) bool { return f.UserBID == userID }), nil
}

func (s *Friendships) list(match func(*models.Friendship) bool) []*models.Friendship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Friendship
	for _, f := range s.byID {
		if match(f) {
			c := *f
			out = append(out, &c)
		}
	}
	return out
}

// Delete deletes a friendship by key. Returns ErrNotFound when absent.
func (s *Friendships) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	f, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("friendship %s: %w", id, repository.ErrNotFound)
	}
	delete(s.byID, id)
	s.mu.Unlock()

	if s.users != nil {
		s.users.unlink(f.UserAID, f.UserBID)
	}
	return nil
}
