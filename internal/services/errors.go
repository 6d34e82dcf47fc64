package services

import (
	"errors"
	"fmt"

	"memories-backend/internal/repository"
)

// Error kinds surfaced to callers. Handlers map them onto status codes with
// errors.Is, so every error returned by this package wraps one of these.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrRemoteFailure = errors.New("remote store failure")
)

var (
	ErrEmptyInviteCode = fmt.Errorf("%w: invite code is empty", ErrInvalidInput)
	ErrSelfFriend      = fmt.Errorf("%w: cannot befriend yourself", ErrInvalidInput)
	ErrNoReceivers     = fmt.Errorf("%w: at least one receiver is required", ErrInvalidInput)
	ErrUnknownType     = fmt.Errorf("%w: unknown media type", ErrInvalidInput)
	ErrMissingPayload  = fmt.Errorf("%w: payload is required for this media type", ErrInvalidInput)
	ErrNotReceiver     = fmt.Errorf("%w: only a receiver can mark an item seen", ErrForbidden)
)

// storeErr translates a repository error into this package's kinds.
// Anything that is not a known sentinel is treated as a remote failure.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, ErrRemoteFailure):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteFailure, err)
}
