package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"memories-backend/internal/middleware"
	"memories-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	maxMessageSize = 4096
	pongWait       = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // native clients send no Origin
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *services.WSHub
	tokens      middleware.TokenValidator
	syncService *services.SyncService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, tokens middleware.TokenValidator, syncService *services.SyncService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		tokens:      tokens,
		syncService: syncService,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", "unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// the request context ends once the handler returns
	ctx := context.WithoutCancel(r.Context())
	h.sendSummary(ctx, userID)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(userID, "Invalid message format")
			continue
		}
		h.handleMessage(ctx, userID, msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, userID string, msg services.WSMessage) {
	switch msg.Type {
	case "ping":
		h.send(userID, services.WSMessage{Type: services.EventPong})
	case "mark_seen":
		if err := h.syncService.MarkSeen(ctx, userID, msg.MediaID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("media_id", msg.MediaID).Msg("Failed to mark media seen")
			h.sendError(userID, markSeenError(err))
		}
	default:
		h.sendError(userID, "Unknown message type")
	}
}

func markSeenError(err error) string {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return "Media not found"
	case errors.Is(err, services.ErrForbidden):
		return "Not a receiver of this media"
	case errors.Is(err, services.ErrInvalidInput):
		return "media_id is required"
	}
	return "Failed to mark media seen"
}

// sendSummary pushes the current history summary right after connecting
func (h *WebSocketHandler) sendSummary(ctx context.Context, userID string) {
	summary, err := h.syncService.RefreshSummary(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to build history summary")
		return
	}
	h.send(userID, services.WSMessage{Type: services.EventHistoryRefresh, Data: summary})
}

func (h *WebSocketHandler) sendError(userID, message string) {
	h.send(userID, services.WSMessage{Type: services.EventError, Message: message})
}

func (h *WebSocketHandler) send(userID string, msg services.WSMessage) {
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}
