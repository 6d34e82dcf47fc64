package services

import (
	"context"
	"errors"
	"fmt"

	"memories-backend/internal/config"
	"memories-backend/internal/metrics"
	"memories-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
)

// Notifier tells users about changes made by someone else. Delivery is best
// effort; failures are logged, never returned.
type Notifier interface {
	FriendAdded(ctx context.Context, recipientID string, f *models.Friendship, from *models.User)
	FriendRemoved(ctx context.Context, recipientID, fromID string)
	MediaReceived(ctx context.Context, recipientID string, m *models.Media, from *models.User)
}

// Alert is a user-visible push notification
type Alert struct {
	Title  string
	Body   string
	Custom map[string]interface{}
}

// PushSender delivers alerts to a device push token
type PushSender interface {
	Push(ctx context.Context, deviceToken string, alert Alert) error
}

// APNsSender pushes alerts through Apple Push Notification service
type APNsSender struct {
	client *apns2.Client
	topic  string
}

// NewAPNsSender loads the .p12 certificate and builds a client for the
// configured environment
func NewAPNsSender(cfg config.APNsConfig) (*APNsSender, error) {
	cert, err := certificate.FromP12File(cfg.CertificateFile, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}
	client := apns2.NewClient(cert)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNsSender{client: client, topic: cfg.Topic}, nil
}

// Push sends one alert
func (s *APNsSender) Push(ctx context.Context, deviceToken string, alert Alert) error {
	p := payload.NewPayload().AlertTitle(alert.Title).AlertBody(alert.Body).Sound("default")
	for k, v := range alert.Custom {
		p = p.Custom(k, v)
	}
	res, err := s.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected with status %d: %s", res.StatusCode, res.Reason)
	}
	return nil
}

// DeliveryNotifier sends events over the hub to connected users and falls
// back to push notifications for everyone else
type DeliveryNotifier struct {
	hub   *WSHub
	users UserStore
	push  PushSender
}

// NewDeliveryNotifier creates a notifier. push may be nil to disable push.
func NewDeliveryNotifier(hub *WSHub, users UserStore, push PushSender) *DeliveryNotifier {
	return &DeliveryNotifier{hub: hub, users: users, push: push}
}

func displayName(u *models.User) string {
	if u == nil || u.DisplayName == "" {
		return FallbackFriendName
	}
	return u.DisplayName
}

func userID(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// FriendAdded notifies recipientID that from created a friendship with them
func (n *DeliveryNotifier) FriendAdded(ctx context.Context, recipientID string, f *models.Friendship, from *models.User) {
	msg := WSMessage{
		Type:     EventFriendAdded,
		FriendID: userID(from),
		Data: map[string]interface{}{
			"friendship_id": f.ID,
			"name":          displayName(from),
			"created_at":    f.CreatedAt,
		},
	}
	n.deliver(ctx, recipientID, msg, &Alert{
		Title:  "New friend",
		Body:   displayName(from) + " added you as a friend",
		Custom: map[string]interface{}{"type": EventFriendAdded, "friend_id": userID(from)},
	})
}

// FriendRemoved notifies recipientID that fromID ended the friendship. It is
// only delivered to connected users.
func (n *DeliveryNotifier) FriendRemoved(ctx context.Context, recipientID, fromID string) {
	n.deliver(ctx, recipientID, WSMessage{Type: EventFriendRemoved, FriendID: fromID}, nil)
}

// MediaReceived notifies recipientID about a new item from from
func (n *DeliveryNotifier) MediaReceived(ctx context.Context, recipientID string, m *models.Media, from *models.User) {
	msg := WSMessage{
		Type:     EventMediaReceived,
		MediaID:  m.ID,
		FriendID: m.SenderID,
		Data: map[string]interface{}{
			"type":       m.Type,
			"name":       displayName(from),
			"created_at": m.CreatedAt,
		},
	}
	n.deliver(ctx, recipientID, msg, &Alert{
		Title:  displayName(from),
		Body:   "Sent you a " + string(m.Type),
		Custom: map[string]interface{}{"type": EventMediaReceived, "media_id": m.ID},
	})
}

func (n *DeliveryNotifier) deliver(ctx context.Context, recipientID string, msg WSMessage, alert *Alert) {
	err := n.hub.SendToUser(recipientID, msg)
	if err == nil {
		metrics.Notifications.WithLabelValues("ws", "sent").Inc()
		return
	}
	if !errors.Is(err, ErrNotConnected) {
		metrics.Notifications.WithLabelValues("ws", "failed").Inc()
		log.Warn().Err(err).Str("user_id", recipientID).Str("event", msg.Type).Msg("Failed to deliver event")
	}
	if alert == nil || n.push == nil {
		return
	}

	user, err := n.users.GetByID(ctx, recipientID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", recipientID).Msg("Failed to load push recipient")
		return
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return
	}
	if err := n.push.Push(ctx, *user.PushToken, *alert); err != nil {
		metrics.Notifications.WithLabelValues("push", "failed").Inc()
		log.Warn().Err(err).Str("user_id", recipientID).Str("event", msg.Type).Msg("Failed to push notification")
		return
	}
	metrics.Notifications.WithLabelValues("push", "sent").Inc()
}
