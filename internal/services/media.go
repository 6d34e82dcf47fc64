package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"memories-backend/internal/metrics"
	"memories-backend/internal/models"
	"memories-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 200
)

// SendInput describes one media item to store
type SendInput struct {
	SenderID    string
	ReceiverIDs []string
	Type        models.MediaType
	Payload     io.Reader
	ContentType string
	Size        int64
	DurationMs  *int64
	CapturedAt  *time.Time
}

// MediaService stores media items and answers history queries
type MediaService struct {
	mediaRepo    MediaStore
	blobs        BlobStore
	defaultLimit int
}

// NewMediaService creates a new media service. defaultLimit applies when a
// history query does not set one; it is clamped to MaxHistoryLimit.
func NewMediaService(mediaRepo MediaStore, blobs BlobStore, defaultLimit int) *MediaService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultHistoryLimit
	}
	if defaultLimit > MaxHistoryLimit {
		defaultLimit = MaxHistoryLimit
	}
	return &MediaService{
		mediaRepo:    mediaRepo,
		blobs:        blobs,
		defaultLimit: defaultLimit,
	}
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Send stores the payload and the metadata row for a new media item. The
// row is only written after the payload is stored, and the payload is
// removed again when the row cannot be written.
func (s *MediaService) Send(ctx context.Context, in SendInput) (*models.Media, error) {
	if in.SenderID == "" {
		return nil, fmt.Errorf("sender is required: %w", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return nil, ErrUnknownType
	}
	receivers := dedupeIDs(in.ReceiverIDs)
	if len(receivers) == 0 {
		return nil, ErrNoReceivers
	}
	if in.Payload == nil && in.Type != models.MediaText {
		return nil, ErrMissingPayload
	}

	m := &models.Media{
		ID:          uuid.NewString(),
		Type:        in.Type,
		SenderID:    in.SenderID,
		ReceiverIDs: receivers,
		Size:        in.Size,
		CapturedAt:  in.CapturedAt,
	}
	if in.Type == models.MediaAudio {
		m.DurationMs = in.DurationMs
	}
	if in.ContentType != "" {
		ct := in.ContentType
		m.ContentType = &ct
	}

	if in.Payload != nil {
		key := fmt.Sprintf("media/%s/%s", in.SenderID, m.ID)
		if err := s.blobs.Put(ctx, key, in.Payload, in.Size, in.ContentType); err != nil {
			return nil, fmt.Errorf("store payload: %w: %w", ErrRemoteFailure, err)
		}
		m.AssetKey = &key
	}

	if err := s.mediaRepo.Create(ctx, m); err != nil {
		if m.AssetKey != nil {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), *m.AssetKey); derr != nil {
				log.Error().Err(derr).Str("asset_key", *m.AssetKey).Msg("Failed to remove orphaned payload")
			}
		}
		return nil, storeErr("create media", err)
	}

	metrics.MediaSent.WithLabelValues(string(m.Type)).Inc()
	log.Info().
		Str("media_id", m.ID).
		Str("sender_id", m.SenderID).
		Int("receivers", len(receivers)).
		Str("type", string(m.Type)).
		Msg("Media stored")
	return m, nil
}

// Get retrieves a media item by ID
func (s *MediaService) Get(ctx context.Context, mediaID string) (*models.Media, error) {
	m, err := s.mediaRepo.GetByID(ctx, mediaID)
	if err != nil {
		return nil, storeErr("get media", err)
	}
	return m, nil
}

// HistoryPage is one merged page of history. Partial is set when one side
// could not be read.
type HistoryPage struct {
	Items   []*models.Media
	Partial bool
}

func (s *MediaService) normalizeQuery(q models.HistoryQuery) (models.HistoryQuery, error) {
	if q.Filter == "" {
		q.Filter = models.FilterAll
	}
	switch q.Filter {
	case models.FilterAll, models.FilterSentByMe:
		q.FriendID = ""
	case models.FilterByFriend:
		if strings.TrimSpace(q.FriendID) == "" {
			return q, fmt.Errorf("friend filter needs a friend id: %w", ErrInvalidInput)
		}
	default:
		return q, fmt.Errorf("unknown history filter %q: %w", q.Filter, ErrInvalidInput)
	}
	q.BeforeID = strings.TrimSpace(q.BeforeID)
	if q.BeforeID != "" && q.Before == nil {
		return q, fmt.Errorf("before_id needs before: %w", ErrInvalidInput)
	}
	if q.Limit <= 0 {
		q.Limit = s.defaultLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	return q, nil
}

// FetchHistory returns userID's history, newest first. Received and sent
// items are read concurrently, merged by id and cut to the query limit.
// The call fails only when every issued read fails.
func (s *MediaService) FetchHistory(ctx context.Context, userID string, q models.HistoryQuery) (*HistoryPage, error) {
	q, err := s.normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	page := repository.MediaPage{Before: q.Before, Limit: q.Limit}
	if q.BeforeID != "" {
		beforeID := q.BeforeID
		page.BeforeID = &beforeID
	}
	if q.FriendID != "" {
		friend := q.FriendID
		page.Counterpart = &friend
	}

	queries := []func(context.Context) ([]*models.Media, error){
		func(ctx context.Context) ([]*models.Media, error) {
			return s.mediaRepo.ListSent(ctx, userID, page)
		},
	}
	if q.Filter != models.FilterSentByMe {
		queries = append(queries, func(ctx context.Context) ([]*models.Media, error) {
			return s.mediaRepo.ListReceived(ctx, userID, page)
		})
	}

	results, errs := fanOut(ctx, queries...)
	failed, joined := joinOutcome(errs)
	if failed == len(queries) {
		return nil, storeErr("fetch history", joined)
	}

	out := &HistoryPage{Items: mergeHistory(results, q.Limit)}
	if failed > 0 {
		out.Partial = true
		metrics.PartialResults.WithLabelValues("history").Inc()
		log.Warn().Err(joined).Str("user_id", userID).Msg("History lookup returned one side only")
	}
	return out, nil
}

// mergeHistory de-duplicates by id, orders by resolved time descending and
// keeps at most limit items. Equal times fall back to id order.
func mergeHistory(sides [][]*models.Media, limit int) []*models.Media {
	byID := make(map[string]*models.Media)
	for _, side := range sides {
		for _, m := range side {
			byID[m.ID] = m
		}
	}
	items := make([]*models.Media, 0, len(byID))
	for _, m := range byID {
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool {
		ti, tj := items[i].ResolvedTime(), items[j].ResolvedTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// AssetURL returns a download URL for the item's payload, or "" when it has none
func (s *MediaService) AssetURL(ctx context.Context, m *models.Media) (string, error) {
	if m.AssetKey == nil {
		return "", nil
	}
	url, err := s.blobs.PresignGet(ctx, *m.AssetKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("asset for %s: %w", m.ID, ErrNotFound)
		}
		return "", fmt.Errorf("asset for %s: %w: %w", m.ID, ErrRemoteFailure, err)
	}
	return url, nil
}
