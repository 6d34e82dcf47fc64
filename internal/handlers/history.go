package handlers

import (
	"net/http"
	"strconv"
	"time"

	"memories-backend/internal/middleware"
	"memories-backend/internal/models"
	"memories-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// HistoryHandler serves the consolidated history view
type HistoryHandler struct {
	syncService *services.SyncService
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(syncService *services.SyncService) *HistoryHandler {
	return &HistoryHandler{syncService: syncService}
}

// GetHistory handles GET /api/v1/history?filter=&friend_id=&limit=&before=&before_id=
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	query := r.URL.Query()

	q := models.HistoryQuery{
		Filter:   models.HistoryFilter(query.Get("filter")),
		FriendID: query.Get("friend_id"),
		BeforeID: query.Get("before_id"),
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(w, "limit must be a non-negative integer", "invalid_input", http.StatusBadRequest)
			return
		}
		q.Limit = limit
	}
	if v := query.Get("before"); v != "" {
		before, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			respondError(w, "before must be RFC 3339", "invalid_input", http.StatusBadRequest)
			return
		}
		q.Before = &before
	}

	view, err := h.syncService.BuildHistoryView(ctx, userID, q)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("filter", string(q.Filter)).Msg("Failed to build history")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
