package repository

import (
	"context"
	"errors"
	"fmt"

	"memories-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FriendshipRepository handles database operations for friendships
type FriendshipRepository struct {
	db *pgxpool.Pool
}

// NewFriendshipRepository creates a new friendship repository
func NewFriendshipRepository(db *pgxpool.Pool) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// Create inserts a friendship under its key and records each side in the
// other's advisory friends list. A duplicate key yields ErrConflict.
func (r *FriendshipRepository) Create(ctx context.Context, f *models.Friendship) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO friendships (id, user_a_id, user_b_id, created_at)
			VALUES ($1, $2, $3, $4)
		`, f.ID, f.UserAID, f.UserBID, f.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET friends = array_append(friends, CASE WHEN id = $1 THEN $2 ELSE $1 END)
			WHERE id IN ($1, $2) AND NOT (CASE WHEN id = $1 THEN $2 ELSE $1 END) = ANY(friends)
		`, f.UserAID, f.UserBID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create friendship: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a friendship by its key
func (r *FriendshipRepository) GetByID(ctx context.Context, id string) (*models.Friendship, error) {
	query := `
		SELECT id, user_a_id, user_b_id, created_at
		FROM friendships
		WHERE id = $1
	`
	var f models.Friendship
	err := r.db.QueryRow(ctx, query, id).Scan(&f.ID, &f.UserAID, &f.UserBID, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get friendship: %w", mapError(err))
	}
	return &f, nil
}

// ListByUserA returns the friendships where userID is stored on the A side
func (r *FriendshipRepository) ListByUserA(ctx context.Context, userID string) ([]*models.Friendship, error) {
	return r.listBy(ctx, "user_a_id", userID)
}

// ListByUserB returns the friendships where userID is stored on the B side
func (r *FriendshipRepository) ListByUserB(ctx context.Context, userID string) ([]*models.Friendship, error) {
	return r.listBy(ctx, "user_b_id", userID)
}

// column is never user input
func (r *FriendshipRepository) listBy(ctx context.Context, column, userID string) ([]*models.Friendship, error) {
	query := `SELECT id, user_a_id, user_b_id, created_at FROM friendships WHERE ` + column + ` = $1`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships by %s: %w", column, mapError(err))
	}
	defer rows.Close()

	var out []*models.Friendship
	for rows.Next() {
		var f models.Friendship
		if err := rows.Scan(&f.ID, &f.UserAID, &f.UserBID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friendships: %w", mapError(err))
	}
	return out, nil
}

// Delete deletes a friendship by key and drops both advisory references.
// Returns ErrNotFound when no row matched.
func (r *FriendshipRepository) Delete(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var a, b string
		err := tx.QueryRow(ctx, `DELETE FROM friendships WHERE id = $1 RETURNING user_a_id, user_b_id`, id).Scan(&a, &b)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET friends = array_remove(friends, CASE WHEN id = $1 THEN $2 ELSE $1 END)
			WHERE id IN ($1, $2)
		`, a, b)
		return err
	})
	if err != nil {
		err = mapError(err)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("friendship %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete friendship: %w", err)
	}
	return nil
}
