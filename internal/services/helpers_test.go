package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"memories-backend/internal/models"
	"memories-backend/internal/repository/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("connection reset by peer")

type recordedEvent struct {
	Kind      string
	Recipient string
	From      string
	MediaID   string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) record(e recordedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) FriendAdded(ctx context.Context, recipientID string, f *models.Friendship, from *models.User) {
	n.record(recordedEvent{Kind: EventFriendAdded, Recipient: recipientID, From: from.ID})
}

func (n *recordingNotifier) FriendRemoved(ctx context.Context, recipientID, fromID string) {
	n.record(recordedEvent{Kind: EventFriendRemoved, Recipient: recipientID, From: fromID})
}

func (n *recordingNotifier) MediaReceived(ctx context.Context, recipientID string, m *models.Media, from *models.User) {
	n.record(recordedEvent{Kind: EventMediaReceived, Recipient: recipientID, From: from.ID, MediaID: m.ID})
}

func (n *recordingNotifier) Events() []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedEvent(nil), n.events...)
}

type testEnv struct {
	users       *memstore.Users
	friendships *memstore.Friendships
	media       *memstore.Media
	statuses    *memstore.Statuses
	blobs       *memstore.Blobs
	notifier    *recordingNotifier

	userSvc   *UserService
	friendSvc *FriendshipService
	mediaSvc  *MediaService
	statusSvc *StatusService
	sync      *SyncService
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// steppingClock returns baseTime plus one second per call
func steppingClock() func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return baseTime.Add(time.Duration(n) * time.Second)
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		users:    memstore.NewUsers(),
		media:    memstore.NewMedia().WithClock(steppingClock()),
		statuses: memstore.NewStatuses(),
		blobs:    memstore.NewBlobs("https://blobs.test"),
		notifier: &recordingNotifier{},
	}
	e.friendships = memstore.NewFriendships(e.users)
	e.wire(SortCollate)
	return e
}

func (e *testEnv) wire(sortMode string) {
	e.userSvc = NewUserService(e.users, "test-secret", time.Hour)
	e.friendSvc = NewFriendshipService(e.friendships)
	e.mediaSvc = NewMediaService(e.media, e.blobs, DefaultHistoryLimit)
	e.statusSvc = NewStatusService(e.statuses, e.media)
	e.sync = NewSyncService(e.userSvc, e.friendSvc, e.mediaSvc, e.statusSvc, e.notifier, sortMode)
}

func (e *testEnv) addUser(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:          uuid.NewString(),
		ExternalID:  "ext-" + uuid.NewString(),
		DisplayName: name,
		InviteCode:  strings.ToUpper(uuid.NewString()[:6]),
		CreatedAt:   baseTime,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) sendText(t *testing.T, from string, to ...string) *models.Media {
	t.Helper()
	m, err := e.mediaSvc.Send(context.Background(), SendInput{
		SenderID:    from,
		ReceiverIDs: to,
		Type:        models.MediaText,
	})
	require.NoError(t, err)
	return m
}
