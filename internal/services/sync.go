package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"memories-backend/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FallbackFriendName is shown for participants whose profile could not be loaded
const FallbackFriendName = "Friend"

// Friend list sort modes
const (
	SortCollate  = "collate"
	SortBytewise = "bytewise"
)

// FriendList is the current user's friends, sorted by display name.
// Partial is set when the friendship lookup returned one side only.
type FriendList struct {
	Friends []*models.User `json:"friends"`
	Partial bool           `json:"partial,omitempty"`
}

// RefreshSummary is what the background refresher pushes to a user
type RefreshSummary struct {
	Items   int  `json:"items"`
	Unread  int  `json:"unread"`
	Partial bool `json:"partial,omitempty"`
}

// SyncService composes the directory, ledger, media store and status
// tracker into the operations clients call
type SyncService struct {
	users       *UserService
	friendships *FriendshipService
	media       *MediaService
	statuses    *StatusService
	notifier    Notifier
	sortMode    string
}

// NewSyncService creates a new sync service
func NewSyncService(
	users *UserService,
	friendships *FriendshipService,
	media *MediaService,
	statuses *StatusService,
	notifier Notifier,
	sortMode string,
) *SyncService {
	if sortMode != SortBytewise {
		sortMode = SortCollate
	}
	return &SyncService{
		users:       users,
		friendships: friendships,
		media:       media,
		statuses:    statuses,
		notifier:    notifier,
		sortMode:    sortMode,
	}
}

// LoadFriendList returns me's friends sorted by display name. Friends whose
// profile no longer exists are skipped.
func (s *SyncService) LoadFriendList(ctx context.Context, me string) (*FriendList, error) {
	list, err := s.friendships.ListFor(ctx, me)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list.Items))
	for _, f := range list.Items {
		ids = append(ids, f.OtherSide(me))
	}
	byID, err := s.users.FetchMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	friends := make([]*models.User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			friends = append(friends, u)
		}
	}
	s.sortByName(friends)

	return &FriendList{Friends: friends, Partial: list.Partial}, nil
}

func (s *SyncService) sortByName(friends []*models.User) {
	if s.sortMode == SortBytewise {
		sort.SliceStable(friends, func(i, j int) bool {
			return friends[i].DisplayName < friends[j].DisplayName
		})
		return
	}
	// a Collator is not safe for concurrent use
	c := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
	sort.SliceStable(friends, func(i, j int) bool {
		return c.CompareString(friends[i].DisplayName, friends[j].DisplayName) < 0
	})
}

// CountFriends returns the number of me's friendships
func (s *SyncService) CountFriends(ctx context.Context, me string) (int, error) {
	return s.friendships.Count(ctx, me)
}

// AddFriendByCode befriends the owner of code. They are notified only when
// the friendship is new; created reports the same.
func (s *SyncService) AddFriendByCode(ctx context.Context, me, code string) (*models.Friendship, bool, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, false, ErrEmptyInviteCode
	}
	friend, err := s.users.ResolveByInviteCode(ctx, code)
	if err != nil {
		return nil, false, err
	}
	if friend.ID == me {
		return nil, false, ErrSelfFriend
	}

	f, created, err := s.friendships.Upsert(ctx, me, friend.ID)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.notifier.FriendAdded(ctx, friend.ID, f, s.sender(ctx, me))
	}
	return f, created, nil
}

// RemoveFriend ends the friendship with friendID and notifies them when
// there was one
func (s *SyncService) RemoveFriend(ctx context.Context, me, friendID string) error {
	friendID = strings.TrimSpace(friendID)
	if friendID == "" {
		return fmt.Errorf("friend id is required: %w", ErrInvalidInput)
	}
	if friendID == me {
		return ErrSelfFriend
	}
	removed, err := s.friendships.Remove(ctx, me, friendID)
	if err != nil {
		return err
	}
	if removed {
		s.notifier.FriendRemoved(ctx, friendID, me)
	}
	return nil
}

// SendMedia stores a media item and notifies every receiver
func (s *SyncService) SendMedia(ctx context.Context, in SendInput) (*models.Media, error) {
	m, err := s.media.Send(ctx, in)
	if err != nil {
		return nil, err
	}
	from := s.sender(ctx, m.SenderID)
	for _, receiverID := range m.ReceiverIDs {
		if receiverID == m.SenderID {
			continue
		}
		s.notifier.MediaReceived(ctx, receiverID, m, from)
	}
	return m, nil
}

// MarkSeen records that me opened mediaID
func (s *SyncService) MarkSeen(ctx context.Context, me, mediaID string) error {
	_, err := s.statuses.MarkSeen(ctx, mediaID, me)
	return err
}

// sender loads a profile for notification text. A failed lookup still
// yields a usable user carrying only the id.
func (s *SyncService) sender(ctx context.Context, id string) *models.User {
	u, err := s.users.FetchByID(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("Failed to load sender profile")
		return &models.User{ID: id}
	}
	return u
}

// BuildHistoryView returns one page of me's history with participant names
// and the ids of received items me has not seen
func (s *SyncService) BuildHistoryView(ctx context.Context, me string, q models.HistoryQuery) (*models.HistoryView, error) {
	page, err := s.media.FetchHistory(ctx, me, q)
	if err != nil {
		return nil, err
	}

	var participants []string
	known := make(map[string]bool)
	for _, m := range page.Items {
		if id := m.Counterpart(me); id != "" && !known[id] {
			known[id] = true
			participants = append(participants, id)
		}
	}

	names, err := s.users.FetchMany(ctx, participants)
	if err != nil {
		log.Warn().Err(err).Str("user_id", me).Msg("Failed to resolve history participants")
		names = nil
	}

	view := &models.HistoryView{
		Items:   make([]models.HistoryItem, 0, len(page.Items)),
		Friends: make(map[string]models.Friend, len(participants)),
		Unread:  []string{},
		Partial: page.Partial,
	}
	for _, id := range participants {
		name := FallbackFriendName
		if u, ok := names[id]; ok && u.DisplayName != "" {
			name = u.DisplayName
		}
		view.Friends[id] = models.Friend{ID: id, Name: name}
	}

	var received []string
	for _, m := range page.Items {
		item := models.HistoryItem{
			ID:       m.ID,
			Friend:   view.Friends[m.Counterpart(me)],
			Type:     m.Type,
			Date:     m.ResolvedTime(),
			Sent:     m.SenderID == me,
			Duration: m.DurationMs,
		}
		if url, err := s.media.AssetURL(ctx, m); err != nil {
			log.Warn().Err(err).Str("media_id", m.ID).Msg("Failed to sign asset URL")
		} else {
			item.AssetURL = url
		}
		view.Items = append(view.Items, item)

		if m.HasReceiver(me) {
			received = append(received, m.ID)
		}
	}

	if q.Filter != models.FilterSentByMe && len(received) > 0 {
		unread, err := s.statuses.UnreadSet(ctx, received, me)
		if err != nil {
			log.Warn().Err(err).Str("user_id", me).Msg("Failed to compute unread set")
		} else {
			for _, id := range received {
				if _, ok := unread[id]; ok {
					view.Unread = append(view.Unread, id)
				}
			}
		}
	}

	return view, nil
}

// RefreshSummary builds the full history view for me and condenses it
func (s *SyncService) RefreshSummary(ctx context.Context, me string) (*RefreshSummary, error) {
	view, err := s.BuildHistoryView(ctx, me, models.HistoryQuery{Filter: models.FilterAll})
	if err != nil {
		return nil, err
	}
	return &RefreshSummary{Items: len(view.Items), Unread: len(view.Unread), Partial: view.Partial}, nil
}
