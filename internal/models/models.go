package models

import "time"

// User represents a user in the system
type User struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"-"`
	DisplayName string    `json:"display_name"`
	InviteCode  string    `json:"invite_code"`
	PhotoKey    *string   `json:"photo_key,omitempty"`
	Friends     []string  `json:"friends,omitempty"` // advisory only, the friendships table is authoritative
	Streak      int       `json:"streak"`
	PushToken   *string   `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Friendship represents a symmetric relationship between two users.
// ID is always the deterministic key of the pair.
type Friendship struct {
	ID        string    `json:"id"`
	UserAID   string    `json:"user_a_id"`
	UserBID   string    `json:"user_b_id"`
	CreatedAt time.Time `json:"created_at"`
}

// OtherSide returns the member of the friendship that is not userID.
func (f *Friendship) OtherSide(userID string) string {
	if f.UserAID == userID {
		return f.UserBID
	}
	return f.UserAID
}

// Involves reports whether userID is one of the two members.
func (f *Friendship) Involves(userID string) bool {
	return f.UserAID == userID || f.UserBID == userID
}

// MediaType tags the kind of payload a media item carries
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaText  MediaType = "text"
)

// Valid reports whether t is one of the known media types
func (t MediaType) Valid() bool {
	switch t {
	case MediaPhoto, MediaVideo, MediaAudio, MediaText:
		return true
	}
	return false
}

// Media represents an item sent by one user to one or more receivers
type Media struct {
	ID          string     `json:"id"`
	Type        MediaType  `json:"type"`
	SenderID    string     `json:"sender_id"`
	ReceiverIDs []string   `json:"receiver_ids"`
	AssetKey    *string    `json:"-"`
	ContentType *string    `json:"content_type,omitempty"`
	Size        int64      `json:"size"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ResolvedTime returns the best available timestamp for ordering:
// creation time, then the client capture time, then the last update.
// Zero means nothing was recorded and sorts last.
func (m *Media) ResolvedTime() time.Time {
	switch {
	case !m.CreatedAt.IsZero():
		return m.CreatedAt
	case m.CapturedAt != nil && !m.CapturedAt.IsZero():
		return *m.CapturedAt
	case !m.UpdatedAt.IsZero():
		return m.UpdatedAt
	}
	return time.Time{}
}

// HasReceiver reports whether userID is among the receivers
func (m *Media) HasReceiver(userID string) bool {
	for _, id := range m.ReceiverIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant from userID's point of view:
// the first receiver when userID sent the item, the sender otherwise.
func (m *Media) Counterpart(userID string) string {
	if m.SenderID == userID {
		if len(m.ReceiverIDs) == 0 {
			return ""
		}
		return m.ReceiverIDs[0]
	}
	return m.SenderID
}

// StatusSeen is the only delivery status currently recorded
const StatusSeen = "seen"

// MediaStatus tracks whether a receiver has opened a media item
type MediaStatus struct {
	ID      string     `json:"id"`
	MediaID string     `json:"media_id"`
	UserID  string     `json:"user_id"`
	Status  string     `json:"status"`
	SeenAt  *time.Time `json:"seen_at,omitempty"`
}

// HistoryFilter selects which side(s) of the history are queried
type HistoryFilter string

const (
	FilterAll      HistoryFilter = "all"
	FilterByFriend HistoryFilter = "friend"
	FilterSentByMe HistoryFilter = "sent"
)

// HistoryQuery describes one history page. Before and BeforeID form the
// cursor: the date and id of the last item of the previous page. Without
// BeforeID every item at Before is excluded.
type HistoryQuery struct {
	Filter   HistoryFilter
	FriendID string
	Limit    int
	Before   *time.Time
	BeforeID string
}

// Friend is the display projection of a user
type Friend struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryItem is a media item as seen by one participant
type HistoryItem struct {
	ID       string    `json:"id"`
	Friend   Friend    `json:"friend"`
	Type     MediaType `json:"type"`
	Date     time.Time `json:"date"`
	Sent     bool      `json:"sent"`
	AssetURL string    `json:"asset_url,omitempty"`
	Duration *int64    `json:"duration_ms,omitempty"`
}

// HistoryView is the consolidated history response
type HistoryView struct {
	Items   []HistoryItem     `json:"items"`
	Friends map[string]Friend `json:"friends"`
	Unread  []string          `json:"unread"`
	Partial bool              `json:"partial,omitempty"`
}
