package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"memories-backend/internal/models"
	"memories-backend/internal/repository"
	"memories-backend/internal/repository/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^[0-9A-F]{6}$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, re, generateCode())
	}
}

type takenCodes struct {
	*memstore.Users
}

func (takenCodes) CodeExists(ctx context.Context, code string) (bool, error) {
	return true, nil
}

func TestGenerateUniqueCode_GivesUp(t *testing.T) {
	svc := NewUserService(takenCodes{memstore.NewUsers()}, "s", time.Hour)
	_, err := svc.GenerateUniqueCode(context.Background())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateOrGet(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	u, created, err := e.userSvc.CreateOrGet(ctx, "device-1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, PlaceholderName, u.DisplayName)
	assert.Len(t, u.InviteCode, 6)

	again, created, err := e.userSvc.CreateOrGet(ctx, " device-1 ", "Someone Else")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, PlaceholderName, again.DisplayName)

	named, created, err := e.userSvc.CreateOrGet(ctx, "device-2", "  Ada ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Ada", named.DisplayName)

	_, _, err = e.userSvc.CreateOrGet(ctx, "   ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

type missingSchemaUsers struct {
	*memstore.Users
}

func (missingSchemaUsers) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return nil, repository.ErrSchemaMissing
}

func TestCreateOrGet_SchemaMissingMeansAbsent(t *testing.T) {
	svc := NewUserService(missingSchemaUsers{memstore.NewUsers()}, "s", time.Hour)
	u, created, err := svc.CreateOrGet(context.Background(), "device-1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "device-1", u.ExternalID)
}

// racingUsers hides the existing record from the first lookup so that the
// following create collides with it
type racingUsers struct {
	*memstore.Users
	hidden bool
}

func (r *racingUsers) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if !r.hidden {
		r.hidden = true
		return nil, repository.ErrNotFound
	}
	return r.Users.GetByExternalID(ctx, externalID)
}

func TestCreateOrGet_LosingRacerGetsWinner(t *testing.T) {
	store := &racingUsers{Users: memstore.NewUsers()}
	winner := &models.User{ID: "winner", ExternalID: "device-1", DisplayName: "W", InviteCode: "AAAAAA"}
	require.NoError(t, store.Users.Create(context.Background(), winner))

	svc := NewUserService(store, "s", time.Hour)
	u, created, err := svc.CreateOrGet(context.Background(), "device-1", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", u.ID)
}

// codeClashUsers rejects the first inserts as if another registration had
// just taken the same invite code
type codeClashUsers struct {
	*memstore.Users
	clashes int
	tried   []string
}

func (c *codeClashUsers) Create(ctx context.Context, user *models.User) error {
	c.tried = append(c.tried, user.InviteCode)
	if c.clashes > 0 {
		c.clashes--
		return fmt.Errorf("failed to create user: %w", repository.ErrConflict)
	}
	return c.Users.Create(ctx, user)
}

func TestCreateOrGet_RetriesInviteCodeClash(t *testing.T) {
	store := &codeClashUsers{Users: memstore.NewUsers(), clashes: 2}
	svc := NewUserService(store, "s", time.Hour)

	u, created, err := svc.CreateOrGet(context.Background(), "device-1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, store.tried, 3)
	assert.Equal(t, store.tried[2], u.InviteCode)

	stored, err := store.GetByExternalID(context.Background(), "device-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)
}

func TestCreateOrGet_GivesUpOnPersistentClash(t *testing.T) {
	store := &codeClashUsers{Users: memstore.NewUsers(), clashes: maxCodeAttempts}
	svc := NewUserService(store, "s", time.Hour)

	_, _, err := svc.CreateOrGet(context.Background(), "device-1", "")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, store.tried, maxCodeAttempts)
}

type brokenUsers struct {
	*memstore.Users
}

func (brokenUsers) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return nil, errBoom
}

func TestCreateOrGet_StoreFailure(t *testing.T) {
	svc := NewUserService(brokenUsers{memstore.NewUsers()}, "s", time.Hour)
	_, _, err := svc.CreateOrGet(context.Background(), "device-1", "")
	assert.ErrorIs(t, err, ErrRemoteFailure)
	assert.ErrorIs(t, err, errBoom)
}

func TestResolveByInviteCode(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "Ada")

	got, err := e.userSvc.ResolveByInviteCode(ctx, "  "+strings.ToLower(u.InviteCode)+"\n")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = e.userSvc.ResolveByInviteCode(ctx, "   ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.userSvc.ResolveByInviteCode(ctx, "ZZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchMany(t *testing.T) {
	e := newTestEnv(t)
	a := e.addUser(t, "A")
	b := e.addUser(t, "B")

	got, err := e.userSvc.FetchMany(context.Background(), []string{a.ID, b.ID, "ghost"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "B", got[b.ID].DisplayName)

	empty, err := e.userSvc.FetchMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateProfileAndPushToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "A")

	updated, err := e.userSvc.UpdateProfile(ctx, u.ID, " Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.DisplayName)

	_, err = e.userSvc.UpdateProfile(ctx, u.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.userSvc.UpdateProfile(ctx, "ghost", "X")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.userSvc.UpdatePushToken(ctx, u.ID, "tok"))
	stored, err := e.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PushToken)
	assert.Equal(t, "tok", *stored.PushToken)

	require.NoError(t, e.userSvc.UpdatePushToken(ctx, u.ID, ""))
	stored, err = e.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PushToken)
}

func TestJWT(t *testing.T) {
	svc := NewUserService(memstore.NewUsers(), "secret", time.Hour)

	token, err := svc.GenerateJWT("user-1")
	require.NoError(t, err)

	id, err := svc.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	other := NewUserService(memstore.NewUsers(), "other", time.Hour)
	_, err = other.ValidateJWT(token)
	assert.Error(t, err)

	expired := NewUserService(memstore.NewUsers(), "secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateJWT("user-1")
	require.NoError(t, err)
	_, err = svc.ValidateJWT(old)
	assert.Error(t, err)

	_, err = svc.ValidateJWT("not-a-token")
	assert.Error(t, err)
}

func TestStoreErr(t *testing.T) {
	assert.ErrorIs(t, storeErr("op", repository.ErrNotFound), ErrNotFound)
	assert.ErrorIs(t, storeErr("op", repository.ErrConflict), ErrConflict)
	err := storeErr("op", errBoom)
	assert.ErrorIs(t, err, ErrRemoteFailure)
	assert.True(t, errors.Is(err, errBoom))
}
