package repository

import (
	"context"
	"fmt"
	"time"

	"memories-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const mediaColumns = `id, type, sender_id, receiver_ids, asset_key, content_type, size, duration_ms, captured_at, created_at, updated_at`

// MediaRepository handles database operations for media items
type MediaRepository struct {
	db *pgxpool.Pool
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{db: db}
}

// MediaPage bounds one side of a history lookup. Rows are ordered by
// (created_at, id) descending and the cursor keeps rows strictly below
// (Before, BeforeID); a nil BeforeID keeps rows strictly before Before.
type MediaPage struct {
	Counterpart *string
	Before      *time.Time
	BeforeID    *string
	Limit       int
}

func scanMedia(row pgx.Row) (*models.Media, error) {
	var m models.Media
	var mediaType string
	err := row.Scan(
		&m.ID, &mediaType, &m.SenderID, &m.ReceiverIDs, &m.AssetKey, &m.ContentType,
		&m.Size, &m.DurationMs, &m.CapturedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = models.MediaType(mediaType)
	return &m, nil
}

// Create inserts a media item. CreatedAt and UpdatedAt are assigned by the
// database and written back into m.
func (r *MediaRepository) Create(ctx context.Context, m *models.Media) error {
	query := `
		INSERT INTO media (id, type, sender_id, receiver_ids, asset_key, content_type, size, duration_ms, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		m.ID, string(m.Type), m.SenderID, m.ReceiverIDs, m.AssetKey, m.ContentType, m.Size, m.DurationMs, m.CapturedAt,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create media: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a media item by ID
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	m, err := scanMedia(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", mapError(err))
	}
	return m, nil
}

// ListReceived returns items where userID is a receiver, optionally only
// those sent by page.Counterpart, newest first.
func (r *MediaRepository) ListReceived(ctx context.Context, userID string, page MediaPage) ([]*models.Media, error) {
	query := `
		SELECT ` + mediaColumns + `
		FROM media
		WHERE $1 = ANY(receiver_ids)
		  AND ($2::text IS NULL OR sender_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3
		       OR (created_at = $3 AND $4::text IS NOT NULL AND id COLLATE "C" < $4))
		ORDER BY created_at DESC, id COLLATE "C" DESC
		LIMIT $5
	`
	return r.list(ctx, "received", query, userID, page)
}

// ListSent returns items sent by userID, optionally only those that include
// page.Counterpart among the receivers, newest first.
func (r *MediaRepository) ListSent(ctx context.Context, userID string, page MediaPage) ([]*models.Media, error) {
	query := `
		SELECT ` + mediaColumns + `
		FROM media
		WHERE sender_id = $1
		  AND ($2::text IS NULL OR $2 = ANY(receiver_ids))
		  AND ($3::timestamptz IS NULL OR created_at < $3
		       OR (created_at = $3 AND $4::text IS NOT NULL AND id COLLATE "C" < $4))
		ORDER BY created_at DESC, id COLLATE "C" DESC
		LIMIT $5
	`
	return r.list(ctx, "sent", query, userID, page)
}

func (r *MediaRepository) list(ctx context.Context, side, query, userID string, page MediaPage) ([]*models.Media, error) {
	rows, err := r.db.Query(ctx, query, userID, page.Counterpart, page.Before, page.BeforeID, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s media: %w", side, mapError(err))
	}
	defer rows.Close()

	var out []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s media: %w", side, mapError(err))
	}
	return out, nil
}
