package repository

import (
	"context"
	"fmt"
	"time"

	"memories-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MediaStatusRepository handles database operations for delivery status rows
type MediaStatusRepository struct {
	db *pgxpool.Pool
}

// NewMediaStatusRepository creates a new media status repository
func NewMediaStatusRepository(db *pgxpool.Pool) *MediaStatusRepository {
	return &MediaStatusRepository{db: db}
}

// UpsertSeen records that userID has seen mediaID. The (media_id, user_id)
// unique constraint makes concurrent calls converge on a single row.
func (r *MediaStatusRepository) UpsertSeen(ctx context.Context, mediaID, userID string, at time.Time) (*models.MediaStatus, error) {
	query := `
		INSERT INTO media_status (id, media_id, user_id, status, seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (media_id, user_id)
		DO UPDATE SET status = EXCLUDED.status, seen_at = EXCLUDED.seen_at
		RETURNING id, media_id, user_id, status, seen_at
	`
	var st models.MediaStatus
	err := r.db.QueryRow(ctx, query, uuid.NewString(), mediaID, userID, models.StatusSeen, at).Scan(
		&st.ID, &st.MediaID, &st.UserID, &st.Status, &st.SeenAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert media status: %w", mapError(err))
	}
	return &st, nil
}

// ListSeen returns the subset of mediaIDs that userID has seen
func (r *MediaStatusRepository) ListSeen(ctx context.Context, userID string, mediaIDs []string) ([]string, error) {
	if len(mediaIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT media_id
		FROM media_status
		WHERE user_id = $1 AND media_id = ANY($2) AND lower(status) = $3
	`
	rows, err := r.db.Query(ctx, query, userID, mediaIDs, models.StatusSeen)
	if err != nil {
		return nil, fmt.Errorf("failed to list media status: %w", mapError(err))
	}
	defer rows.Close()

	var seen []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan media status: %w", err)
		}
		seen = append(seen, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media status: %w", mapError(err))
	}
	return seen, nil
}
