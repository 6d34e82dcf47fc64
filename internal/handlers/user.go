package handlers

import (
	"errors"
	"net/http"

	"memories-backend/internal/identity"
	"memories-backend/internal/middleware"
	"memories-backend/internal/models"
	"memories-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
	verifier    identity.Verifier
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, verifier identity.Verifier) *UserHandler {
	return &UserHandler{
		userService: userService,
		verifier:    verifier,
	}
}

// CreateUserRequest represents the request body for registering
type CreateUserRequest struct {
	Credential  string `json:"credential" validate:"required,max=4096"`
	DisplayName string `json:"display_name" validate:"max=64"`
}

// CreateUserResponse represents the response for registering
type CreateUserResponse struct {
	User    *models.User `json:"user"`
	Token   string       `json:"token"`
	Created bool         `json:"created"`
}

// PublicUser is what other users may see of a profile
type PublicUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	InviteCode  string `json:"invite_code"`
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), "invalid_input", http.StatusBadRequest)
		return
	}

	id, err := h.verifier.Verify(ctx, req.Credential)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredential) {
			log.Error().Err(err).Msg("Failed to verify credential")
		}
		respondError(w, "Invalid credential", "unauthorized", http.StatusUnauthorized)
		return
	}

	name := req.DisplayName
	if name == "" {
		name = id.Name
	}

	user, created, err := h.userService.CreateOrGet(ctx, id.ExternalID, name)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		respondServiceError(w, err)
		return
	}

	token, err := h.userService.GenerateJWT(user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate token")
		respondError(w, "Failed to generate token", "internal", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, CreateUserResponse{User: user, Token: token, Created: created})
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.userService.FetchByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateProfileRequest represents the request body for PATCH /users/me
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=64"`
}

// UpdateMe handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), "invalid_input", http.StatusBadRequest)
		return
	}

	user, err := h.userService.UpdateProfile(ctx, userID, req.DisplayName)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update profile")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdatePushTokenRequest represents the request body for updating push token
type UpdatePushTokenRequest struct {
	PushToken string `json:"push_token" validate:"max=512"`
}

// UpdatePushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UpdatePushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), "invalid_input", http.StatusBadRequest)
		return
	}

	if err := h.userService.UpdatePushToken(ctx, userID, req.PushToken); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update push token")
		respondServiceError(w, err)
		return
	}

	log.Info().Str("user_id", userID).Msg("Push token updated")
	w.WriteHeader(http.StatusNoContent)
}

// GetByCode handles GET /api/v1/users/by-code/{code}
func (h *UserHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.ResolveByInviteCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PublicUser{ID: user.ID, DisplayName: user.DisplayName, InviteCode: user.InviteCode})
}
