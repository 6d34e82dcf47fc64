package repository

import (
	"context"
	"fmt"
	"strings"

	"memories-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, external_id, display_name, invite_code, photo_key, friends, streak, push_token, created_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.ExternalID, &user.DisplayName, &user.InviteCode, &user.PhotoKey,
		&user.Friends, &user.Streak, &user.PushToken, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, external_id, display_name, invite_code, photo_key, streak, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.ExternalID, user.DisplayName, user.InviteCode, user.PhotoKey, user.Streak, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", mapError(err))
	}
	return user, nil
}

// GetByExternalID retrieves a user by the identity provider's id
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by external id: %w", mapError(err))
	}
	return user, nil
}

// GetByInviteCode retrieves a user by invite code, ignoring case
func (r *UserRepository) GetByInviteCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE upper(invite_code) = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, strings.ToUpper(code)))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by code: %w", mapError(err))
	}
	return user, nil
}

// GetByIDs retrieves every listed user in one query. Unknown ids are skipped.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", mapError(err))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", mapError(err))
	}
	return users, nil
}

// CodeExists checks if a code already exists
func (r *UserRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE upper(invite_code) = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, strings.ToUpper(code)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", mapError(err))
	}
	return exists, nil
}

// UpdateDisplayName changes the user's display name
func (r *UserRepository) UpdateDisplayName(ctx context.Context, userID, name string) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET display_name = $1 WHERE id = $2`, name, userID)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed to update display name: %w", ErrNotFound)
	}
	return nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET push_token = $1 WHERE id = $2`, pushToken, userID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed to update push token: %w", ErrNotFound)
	}
	return nil
}
