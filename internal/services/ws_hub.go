package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"memories-backend/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket event types
const (
	EventFriendAdded    = "friend_added"
	EventFriendRemoved  = "friend_removed"
	EventMediaReceived  = "media_received"
	EventHistoryRefresh = "history_refresh"
	EventError          = "error"
	EventPong           = "pong"
)

const writeWait = 10 * time.Second

// ErrNotConnected is returned when sending to a user without a live socket
var ErrNotConnected = errors.New("user is not connected")

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	MediaID   string      `json:"media_id,omitempty"`
	FriendID  string      `json:"friend_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// wsClient serialises writes to one connection
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[string]*wsClient),
	}
}

// Register registers a connection for a user, closing any older one
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[userID]; ok {
		existing.conn.Close()
	} else {
		metrics.WSConnections.Inc()
	}
	h.clients[userID] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes the user's connection if it is still conn. A connection
// that was already replaced by a newer one is left alone.
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[userID]
	if !ok || client.conn != conn {
		return
	}
	client.conn.Close()
	delete(h.clients, userID)
	metrics.WSConnections.Dec()
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("send to %s: %w", userID, ErrNotConnected)
	}

	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	client.mu.Lock()
	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = client.conn.WriteMessage(websocket.TextMessage, data)
	client.mu.Unlock()

	if err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns the ids of every connected user, sorted
func (h *WSHub) OnlineUsers() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close closes every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.conn.Close()
		delete(h.clients, id)
		metrics.WSConnections.Dec()
	}
}
