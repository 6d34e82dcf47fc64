package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"memories-backend/internal/metrics"
	"memories-backend/internal/models"
	"memories-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// DeterministicKey returns the friendship key for a pair of users. It is the
// same whichever order the ids are given in.
func DeterministicKey(a, b string) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return "FRI-" + lo + "-" + hi
}

// FriendshipList is the result of a two-sided friendship lookup. Partial is
// set when one side could not be read.
type FriendshipList struct {
	Items   []*models.Friendship
	Partial bool
}

// FriendshipService is the friendship ledger
type FriendshipService struct {
	friendshipRepo FriendshipStore
	now            func() time.Time
}

// NewFriendshipService creates a new friendship service
func NewFriendshipService(friendshipRepo FriendshipStore) *FriendshipService {
	return &FriendshipService{
		friendshipRepo: friendshipRepo,
		now:            time.Now,
	}
}

// Upsert returns the friendship between a and b, creating it when absent.
// Concurrent calls for the same pair all observe the single stored record;
// created is true only for the call that wrote it.
func (s *FriendshipService) Upsert(ctx context.Context, a, b string) (*models.Friendship, bool, error) {
	if a == "" || b == "" {
		return nil, false, fmt.Errorf("friendship members are required: %w", ErrInvalidInput)
	}
	if a == b {
		return nil, false, ErrSelfFriend
	}

	key := DeterministicKey(a, b)
	existing, err := s.friendshipRepo.GetByID(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, storeErr("get friendship", err)
	}

	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	f := &models.Friendship{
		ID:        key,
		UserAID:   lo,
		UserBID:   hi,
		CreatedAt: s.now().UTC(),
	}

	if err := s.friendshipRepo.Create(ctx, f); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, storeErr("create friendship", err)
		}
		winner, rerr := s.friendshipRepo.GetByID(ctx, key)
		if rerr != nil {
			return nil, false, storeErr("create friendship", err)
		}
		metrics.UpsertConflicts.Inc()
		log.Debug().Str("friendship_id", key).Msg("Friendship created concurrently, using stored record")
		return winner, false, nil
	}

	metrics.FriendshipsCreated.Inc()
	log.Info().Str("friendship_id", key).Str("user_a_id", lo).Str("user_b_id", hi).Msg("Friendship created")
	return f, true, nil
}

// ListFor returns every friendship userID takes part in, newest first. Both
// sides of the ledger are read concurrently; the call fails only when both
// reads fail.
func (s *FriendshipService) ListFor(ctx context.Context, userID string) (*FriendshipList, error) {
	results, errs := fanOut(ctx,
		func(ctx context.Context) ([]*models.Friendship, error) {
			return s.friendshipRepo.ListByUserA(ctx, userID)
		},
		func(ctx context.Context) ([]*models.Friendship, error) {
			return s.friendshipRepo.ListByUserB(ctx, userID)
		},
	)

	failed, err := joinOutcome(errs)
	if failed == len(errs) {
		return nil, storeErr("list friendships", err)
	}

	byID := make(map[string]*models.Friendship)
	for _, side := range results {
		for _, f := range side {
			byID[f.ID] = f
		}
	}
	list := &FriendshipList{Items: make([]*models.Friendship, 0, len(byID))}
	for _, f := range byID {
		list.Items = append(list.Items, f)
	}
	sort.Slice(list.Items, func(i, j int) bool {
		a, b := list.Items[i], list.Items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if failed > 0 {
		list.Partial = true
		metrics.PartialResults.WithLabelValues("friendships").Inc()
		log.Warn().Err(err).Str("user_id", userID).Msg("Friendship lookup returned one side only")
	}
	return list, nil
}

// Remove deletes the friendship between a and b and reports whether one
// existed. A missing friendship is not an error.
func (s *FriendshipService) Remove(ctx context.Context, a, b string) (bool, error) {
	key := DeterministicKey(a, b)
	if err := s.friendshipRepo.Delete(ctx, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storeErr("remove friendship", err)
	}
	log.Info().Str("friendship_id", key).Msg("Friendship removed")
	return true, nil
}

// Count returns how many friendships userID takes part in
func (s *FriendshipService) Count(ctx context.Context, userID string) (int, error) {
	list, err := s.ListFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(list.Items), nil
}
