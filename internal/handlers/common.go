package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"memories-backend/internal/services"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondJSON writes v as a JSON body
func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message, code string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// respondServiceError maps a service error onto a status code. Client
// errors echo the message; server errors do not.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		respondError(w, err.Error(), "not_found", http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidInput):
		respondError(w, err.Error(), "invalid_input", http.StatusBadRequest)
	case errors.Is(err, services.ErrForbidden):
		respondError(w, err.Error(), "forbidden", http.StatusForbidden)
	case errors.Is(err, services.ErrConflict):
		respondError(w, err.Error(), "conflict", http.StatusConflict)
	case errors.Is(err, services.ErrRemoteFailure):
		respondError(w, "Storage is temporarily unavailable", "remote_failure", http.StatusBadGateway)
	default:
		respondError(w, "Internal server error", "internal", http.StatusInternalServerError)
	}
}

// decodeJSON decodes the body into dst and runs its validate tags
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("invalid request: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
