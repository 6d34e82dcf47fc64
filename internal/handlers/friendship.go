package handlers

import (
	"net/http"

	"memories-backend/internal/middleware"
	"memories-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// FriendshipHandler handles friend list HTTP requests
type FriendshipHandler struct {
	syncService *services.SyncService
}

// NewFriendshipHandler creates a new friendship handler
func NewFriendshipHandler(syncService *services.SyncService) *FriendshipHandler {
	return &FriendshipHandler{syncService: syncService}
}

// AddFriendRequest represents the request body for adding a friend
type AddFriendRequest struct {
	InviteCode string `json:"invite_code" validate:"required,max=32"`
}

// ListFriends handles GET /api/v1/friends
func (h *FriendshipHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	list, err := h.syncService.LoadFriendList(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load friends")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// CountFriends handles GET /api/v1/friends/count
func (h *FriendshipHandler) CountFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	n, err := h.syncService.CountFriends(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to count friends")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": n})
}

// AddFriend handles POST /api/v1/friends
func (h *FriendshipHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req AddFriendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), "invalid_input", http.StatusBadRequest)
		return
	}

	f, created, err := h.syncService.AddFriendByCode(ctx, userID, req.InviteCode)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("invite_code", req.InviteCode).Msg("Failed to add friend")
		respondServiceError(w, err)
		return
	}

	if !created {
		respondJSON(w, http.StatusOK, f)
		return
	}
	log.Info().Str("user_id", userID).Str("friendship_id", f.ID).Msg("Friend added")
	respondJSON(w, http.StatusCreated, f)
}

// RemoveFriend handles DELETE /api/v1/friends/{friend_id}
func (h *FriendshipHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	friendID := chi.URLParam(r, "friend_id")

	if err := h.syncService.RemoveFriend(ctx, userID, friendID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("friend_id", friendID).Msg("Failed to remove friend")
		respondServiceError(w, err)
		return
	}

	log.Info().Str("user_id", userID).Str("friend_id", friendID).Msg("Friend removed")
	w.WriteHeader(http.StatusNoContent)
}
