package services

import (
	"context"
	"fmt"
	"time"

	"memories-backend/internal/metrics"
	"memories-backend/internal/models"
)

// StatusService tracks which receivers have opened which media items
type StatusService struct {
	statusRepo StatusStore
	mediaRepo  MediaStore
	now        func() time.Time
}

// NewStatusService creates a new status service
func NewStatusService(statusRepo StatusStore, mediaRepo MediaStore) *StatusService {
	return &StatusService{
		statusRepo: statusRepo,
		mediaRepo:  mediaRepo,
		now:        time.Now,
	}
}

// MarkSeen records that userID opened mediaID. Marking twice is harmless.
func (s *StatusService) MarkSeen(ctx context.Context, mediaID, userID string) (*models.MediaStatus, error) {
	if mediaID == "" {
		return nil, fmt.Errorf("media id is required: %w", ErrInvalidInput)
	}
	m, err := s.mediaRepo.GetByID(ctx, mediaID)
	if err != nil {
		return nil, storeErr("mark seen", err)
	}
	if !m.HasReceiver(userID) {
		return nil, ErrNotReceiver
	}

	st, err := s.statusRepo.UpsertSeen(ctx, mediaID, userID, s.now().UTC())
	if err != nil {
		return nil, storeErr("mark seen", err)
	}
	metrics.MediaSeen.Inc()
	return st, nil
}

// UnreadSet returns the ids among mediaIDs that userID has not seen
func (s *StatusService) UnreadSet(ctx context.Context, mediaIDs []string, userID string) (map[string]struct{}, error) {
	unread := make(map[string]struct{}, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return unread, nil
	}
	seen, err := s.statusRepo.ListSeen(ctx, userID, mediaIDs)
	if err != nil {
		return nil, storeErr("list seen", err)
	}
	for _, id := range mediaIDs {
		unread[id] = struct{}{}
	}
	for _, id := range seen {
		delete(unread, id)
	}
	return unread, nil
}
