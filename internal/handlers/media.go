package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"memories-backend/internal/middleware"
	"memories-backend/internal/models"
	"memories-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// parts larger than this are spooled to disk by net/http while parsing
const multipartMemory = 8 << 20

// MediaHandler handles media upload and status HTTP requests
type MediaHandler struct {
	syncService    *services.SyncService
	maxUploadBytes int64
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(syncService *services.SyncService, maxUploadBytes int64) *MediaHandler {
	return &MediaHandler{
		syncService:    syncService,
		maxUploadBytes: maxUploadBytes,
	}
}

// SendMedia handles POST /api/v1/media (multipart form)
func (h *MediaHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "Upload too large", "invalid_input", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "Invalid multipart form", "invalid_input", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := services.SendInput{
		SenderID:    userID,
		Type:        models.MediaType(strings.ToLower(strings.TrimSpace(r.FormValue("type")))),
		ReceiverIDs: receiverIDs(r.MultipartForm),
	}

	if v := r.FormValue("duration_ms"); v != "" {
		d, err := strconv.ParseInt(v, 10, 64)
		if err != nil || d < 0 {
			respondError(w, "duration_ms must be a non-negative integer", "invalid_input", http.StatusBadRequest)
			return
		}
		in.DurationMs = &d
	}
	if v := r.FormValue("captured_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, "captured_at must be RFC 3339", "invalid_input", http.StatusBadRequest)
			return
		}
		in.CapturedAt = &t
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		in.Payload = file
		in.Size = header.Size
		in.ContentType = header.Header.Get("Content-Type")
	case errors.Is(err, http.ErrMissingFile):
	default:
		respondError(w, "Invalid file part", "invalid_input", http.StatusBadRequest)
		return
	}

	m, err := h.syncService.SendMedia(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("type", string(in.Type)).Msg("Failed to send media")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// receiverIDs accepts repeated receiver_ids fields as well as comma
// separated lists
func receiverIDs(form *multipart.Form) []string {
	var ids []string
	for _, v := range form.Value["receiver_ids"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// MarkSeen handles POST /api/v1/media/{media_id}/seen
func (h *MediaHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	mediaID := chi.URLParam(r, "media_id")

	if err := h.syncService.MarkSeen(ctx, userID, mediaID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("media_id", mediaID).Msg("Failed to mark media seen")
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
