package services

import (
	"context"
	"io"
	"time"

	"memories-backend/internal/models"
	"memories-backend/internal/repository"
)

// UserStore is the persistence the user directory needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetByInviteCode(ctx context.Context, code string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateDisplayName(ctx context.Context, userID, name string) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// FriendshipStore is the persistence the friendship ledger needs
type FriendshipStore interface {
	Create(ctx context.Context, f *models.Friendship) error
	GetByID(ctx context.Context, id string) (*models.Friendship, error)
	ListByUserA(ctx context.Context, userID string) ([]*models.Friendship, error)
	ListByUserB(ctx context.Context, userID string) ([]*models.Friendship, error)
	Delete(ctx context.Context, id string) error
}

// MediaStore is the persistence the media store needs
type MediaStore interface {
	Create(ctx context.Context, m *models.Media) error
	GetByID(ctx context.Context, id string) (*models.Media, error)
	ListReceived(ctx context.Context, userID string, page repository.MediaPage) ([]*models.Media, error)
	ListSent(ctx context.Context, userID string, page repository.MediaPage) ([]*models.Media, error)
}

// StatusStore is the persistence the status tracker needs
type StatusStore interface {
	UpsertSeen(ctx context.Context, mediaID, userID string, at time.Time) (*models.MediaStatus, error)
	ListSeen(ctx context.Context, userID string, mediaIDs []string) ([]string, error)
}

// BlobStore holds media payloads
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, error)
}
