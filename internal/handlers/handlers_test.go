package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"memories-backend/internal/identity"
	"memories-backend/internal/middleware"
	"memories-backend/internal/models"
	"memories-backend/internal/repository/memstore"
	"memories-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router  http.Handler
	hub     *services.WSHub
	blobs   *memstore.Blobs
	userSvc *services.UserService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	users := memstore.NewUsers()
	media := memstore.NewMedia()
	statuses := memstore.NewStatuses()
	blobs := memstore.NewBlobs("https://blobs.test")
	hub := services.NewWSHub()
	t.Cleanup(hub.Close)

	userSvc := services.NewUserService(users, "test-secret", time.Hour)
	friendSvc := services.NewFriendshipService(memstore.NewFriendships(users))
	mediaSvc := services.NewMediaService(media, blobs, services.DefaultHistoryLimit)
	statusSvc := services.NewStatusService(statuses, media)
	notifier := services.NewDeliveryNotifier(hub, users, nil)
	syncSvc := services.NewSyncService(userSvc, friendSvc, mediaSvc, statusSvc, notifier, services.SortCollate)

	router := NewRouter(Routes{
		Users:     NewUserHandler(userSvc, identity.DeviceVerifier{}),
		Friends:   NewFriendshipHandler(syncSvc),
		Media:     NewMediaHandler(syncSvc, 1<<20),
		History:   NewHistoryHandler(syncSvc),
		WebSocket: NewWebSocketHandler(hub, userSvc, syncSvc),
		Health:    NewHealthHandler(nil),
		Auth:      middleware.AuthMiddleware(userSvc),
		Blobs:     blobs,
	})
	return &testApp{router: router, hub: hub, blobs: blobs, userSvc: userSvc}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

type session struct {
	User  models.User
	Token string
}

func (a *testApp) register(t *testing.T, device, name string) session {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Credential: device, DisplayName: name})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rec.Code, rec.Body.String())
	var resp CreateUserResponse
	decode(t, rec, &resp)
	return session{User: *resp.User, Token: resp.Token}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, rec, &resp)
	return resp.Code
}

func TestCreateUser(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Credential: "device-1", DisplayName: "Ada"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var first CreateUserResponse
	decode(t, rec, &first)
	assert.True(t, first.Created)
	assert.Equal(t, "Ada", first.User.DisplayName)
	assert.NotEmpty(t, first.Token)
	assert.NotContains(t, rec.Body.String(), "device-1")

	rec = app.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Credential: "device-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var again CreateUserResponse
	decode(t, rec, &again)
	assert.False(t, again.Created)
	assert.Equal(t, first.User.ID, again.User.ID)

	rec = app.do(t, http.MethodPost, "/api/v1/users", "", map[string]string{"display_name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))

	rec = app.do(t, http.MethodPost, "/api/v1/users", "", CreateUserRequest{Credential: "   "})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	app := newTestApp(t)
	me := app.register(t, "device-1", "")
	assert.Equal(t, services.PlaceholderName, me.User.DisplayName)

	rec := app.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPatch, "/api/v1/users/me", me.Token, UpdateProfileRequest{DisplayName: "Grace"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/v1/users/me", me.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	decode(t, rec, &user)
	assert.Equal(t, "Grace", user.DisplayName)

	rec = app.do(t, http.MethodPatch, "/api/v1/users/me", me.Token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPut, "/api/v1/users/me/push-token", me.Token, UpdatePushTokenRequest{PushToken: "apns-token"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetByCode(t *testing.T) {
	app := newTestApp(t)
	me := app.register(t, "device-1", "Me")
	other := app.register(t, "device-2", "Other")

	rec := app.do(t, http.MethodGet, "/api/v1/users/by-code/"+other.User.InviteCode, me.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pub PublicUser
	decode(t, rec, &pub)
	assert.Equal(t, PublicUser{ID: other.User.ID, DisplayName: "Other", InviteCode: other.User.InviteCode}, pub)

	rec = app.do(t, http.MethodGet, "/api/v1/users/by-code/NOPE00", me.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestFriendEndpoints(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "device-a", "Alice")
	bob := app.register(t, "device-b", "Bob")

	rec := app.do(t, http.MethodPost, "/api/v1/friends", alice.Token, AddFriendRequest{InviteCode: bob.User.InviteCode})
	require.Equal(t, http.StatusCreated, rec.Code)
	var f models.Friendship
	decode(t, rec, &f)
	assert.Equal(t, services.DeterministicKey(alice.User.ID, bob.User.ID), f.ID)

	rec = app.do(t, http.MethodPost, "/api/v1/friends", bob.Token, AddFriendRequest{InviteCode: alice.User.InviteCode})
	require.Equal(t, http.StatusOK, rec.Code)
	var existing models.Friendship
	decode(t, rec, &existing)
	assert.Equal(t, f.ID, existing.ID)

	rec = app.do(t, http.MethodGet, "/api/v1/friends", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Friends []models.User `json:"friends"`
		Partial bool          `json:"partial"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Friends, 1)
	assert.Equal(t, alice.User.ID, list.Friends[0].ID)
	assert.False(t, list.Partial)

	rec = app.do(t, http.MethodGet, "/api/v1/friends/count", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = app.do(t, http.MethodPost, "/api/v1/friends", alice.Token, AddFriendRequest{InviteCode: alice.User.InviteCode})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/v1/friends", alice.Token, AddFriendRequest{InviteCode: "NOPE00"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/v1/friends", alice.Token, AddFriendRequest{InviteCode: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodDelete, "/api/v1/friends/"+bob.User.ID, alice.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/v1/friends/count", bob.Token, nil)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

type multipartField struct {
	name, value string
}

func multipartBody(t *testing.T, fields []multipartField, file []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(t, w.WriteField(f.name, f.value))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="photo.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (a *testApp) upload(t *testing.T, token string, fields []multipartField, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, file)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestMediaAndHistory(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "device-a", "Alice")
	bob := app.register(t, "device-b", "Bob")

	rec := app.upload(t, alice.Token, []multipartField{
		{"type", "photo"},
		{"receiver_ids", bob.User.ID + "," + bob.User.ID},
		{"captured_at", "2024-05-01T10:00:00Z"},
	}, []byte("jpeg-bytes"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m models.Media
	decode(t, rec, &m)
	assert.Equal(t, []string{bob.User.ID}, m.ReceiverIDs)
	require.NotNil(t, m.ContentType)
	assert.Equal(t, "image/jpeg", *m.ContentType)
	assert.Equal(t, 1, app.blobs.Len())

	rec = app.do(t, http.MethodGet, "/api/v1/history", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.HistoryView
	decode(t, rec, &view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, models.Friend{ID: alice.User.ID, Name: "Alice"}, view.Items[0].Friend)
	assert.False(t, view.Items[0].Sent)
	assert.Contains(t, view.Items[0].AssetURL, "media/"+alice.User.ID+"/"+m.ID)
	assert.Equal(t, []string{m.ID}, view.Unread)

	rec = app.do(t, http.MethodGet, "/blobs/media/"+alice.User.ID+"/"+m.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodGet, "/blobs/media/"+alice.User.ID+"/"+m.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec = app.do(t, http.MethodPost, "/api/v1/media/"+m.ID+"/seen", alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))

	rec = app.do(t, http.MethodPost, "/api/v1/media/missing/seen", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/v1/media/"+m.ID+"/seen", bob.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/v1/history?filter=friend&friend_id="+alice.User.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Len(t, view.Items, 1)
	assert.Empty(t, view.Unread)

	rec = app.do(t, http.MethodGet, "/api/v1/history?filter=sent", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sent models.HistoryView
	decode(t, rec, &sent)
	require.Len(t, sent.Items, 1)
	assert.True(t, sent.Items[0].Sent)
	assert.Equal(t, bob.User.ID, sent.Items[0].Friend.ID)
}

func TestSendMedia_Rejections(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "device-a", "Alice")

	tests := []struct {
		name   string
		fields []multipartField
		file   []byte
		status int
	}{
		{"no receivers", []multipartField{{"type", "photo"}}, []byte("x"), http.StatusBadRequest},
		{"unknown type", []multipartField{{"type", "gif"}, {"receiver_ids", "bob"}}, []byte("x"), http.StatusBadRequest},
		{"photo without file", []multipartField{{"type", "photo"}, {"receiver_ids", "bob"}}, nil, http.StatusBadRequest},
		{"bad duration", []multipartField{{"type", "audio"}, {"receiver_ids", "bob"}, {"duration_ms", "-3"}}, []byte("x"), http.StatusBadRequest},
		{"bad capture time", []multipartField{{"type", "text"}, {"receiver_ids", "bob"}, {"captured_at", "yesterday"}}, nil, http.StatusBadRequest},
		{"text needs no file", []multipartField{{"type", "text"}, {"receiver_ids", "bob"}}, nil, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.upload(t, alice.Token, tt.fields, tt.file)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHistory_BadQueries(t *testing.T) {
	app := newTestApp(t)
	me := app.register(t, "device-1", "Me")

	for _, q := range []string{"?limit=abc", "?limit=-1", "?before=yesterday", "?filter=friend", "?filter=everything", "?before_id=abc"} {
		rec := app.do(t, http.MethodGet, "/api/v1/history"+q, me.Token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec := app.do(t, http.MethodGet, "/api/v1/history?limit=5&before="+time.Now().UTC().Format(time.RFC3339Nano), me.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{services.ErrSelfFriend, http.StatusBadRequest, "invalid_input"},
		{services.ErrNotReceiver, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("x: %w", services.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("x: %w: %w", services.ErrRemoteFailure, errors.New("dial tcp")), http.StatusBadGateway, "remote_failure"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		respondServiceError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.Equal(t, tt.code, errorCode(t, rec))
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	down := NewHealthHandler(pingFunc(func(ctx context.Context) error { return errors.New("refused") }))
	down.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
