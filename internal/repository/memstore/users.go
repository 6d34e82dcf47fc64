// Package memstore keeps every record in process memory. It backs the
// "memory" database driver used for local development and the service
// and handler tests. Errors carry the same sentinels as the Postgres
// repositories.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"memories-backend/internal/models"
	"memories-backend/internal/repository"
)

// Users is an in-memory user directory
type Users struct {
	mu   sync.RWMutex
	byID map[string]*models.User
}

// NewUsers creates an empty user directory
func NewUsers() *Users {
	return &Users{byID: make(map[string]*models.User)}
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.Friends = append([]string(nil), u.Friends...)
	return &c
}

// Create stores a user. Duplicate ids, external ids or invite codes yield ErrConflict.
func (s *Users) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ID == user.ID || u.ExternalID == user.ExternalID || strings.EqualFold(u.InviteCode, user.InviteCode) {
			return fmt.Errorf("failed to create user: %w", repository.ErrConflict)
		}
	}
	s.byID[user.ID] = copyUser(user)
	return nil
}

// GetByID retrieves a user by ID
func (s *Users) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byID[id]; ok {
		return copyUser(u), nil
	}
	return nil, fmt.Errorf("failed to get user: %w", repository.ErrNotFound)
}

// GetByExternalID retrieves a user by the identity provider's id
func (s *Users) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.ExternalID == externalID })
}

// GetByInviteCode retrieves a user by invite code, ignoring case
func (s *Users) GetByInviteCode(ctx context.Context, code string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return strings.EqualFold(u.InviteCode, code) })
}

func (s *Users) find(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("failed to find user: %w", repository.ErrNotFound)
}

// GetByIDs retrieves every listed user. Unknown ids are skipped.
func (s *Users) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

// CodeExists checks if a code already exists
func (s *Users) CodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.GetByInviteCode(ctx, code)
	return err == nil, nil
}

// UpdateDisplayName changes the user's display name
func (s *Users) UpdateDisplayName(ctx context.Context, userID, name string) error {
	return s.update(userID, func(u *models.User) { u.DisplayName = name })
}

// UpdatePushToken updates the push token for a user
func (s *Users) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	return s.update(userID, func(u *models.User) { u.PushToken = pushToken })
}

func (s *Users) update(userID string, apply func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return fmt.Errorf("failed to update user: %w", repository.ErrNotFound)
	}
	apply(u)
	return nil
}

func (s *Users) link(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		u, ok := s.byID[pair[0]]
		if !ok {
			continue
		}
		found := false
		for _, id := range u.Friends {
			if id == pair[1] {
				found = true
				break
			}
		}
		if !found {
			u.Friends = append(u.Friends, pair[1])
		}
	}
}

func (s *Users) unlink(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		u, ok := s.byID[pair[0]]
		if !ok {
			continue
		}
		kept := u.Friends[:0]
		for _, id := range u.Friends {
			if id != pair[1] {
				kept = append(kept, id)
			}
		}
		u.Friends = kept
	}
}
