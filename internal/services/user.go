package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memories-backend/internal/models"
	"memories-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	codeLength      = 6
	maxCodeAttempts = 10

	// PlaceholderName is given to users whose identity provider did not
	// supply a display name
	PlaceholderName = "New friend"
)

// UserService is the user directory: lookups, creation and session tokens
type UserService struct {
	userRepo  UserStore
	jwtSecret string
	jwtTTL    time.Duration
	now       func() time.Time
}

// NewUserService creates a new user service
func NewUserService(userRepo UserStore, jwtSecret string, jwtTTL time.Duration) *UserService {
	return &UserService{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		now:       time.Now,
	}
}

// NormalizeCode trims and uppercases an invite code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateUniqueCode generates an invite code not yet used by anyone
func (s *UserService) GenerateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := generateCode()
		exists, err := s.userRepo.CodeExists(ctx, code)
		if err != nil {
			return "", storeErr("check invite code", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts: %w", maxCodeAttempts, ErrConflict)
}

// generateCode takes the leading hex digits of a random UUID
func generateCode() string {
	return strings.ToUpper(uuid.NewString()[:codeLength])
}

// GenerateJWT generates a session token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.jwtTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a session token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user_id not found in token")
	}
	return userID, nil
}

// ResolveByInviteCode finds the user owning code. Matching is exact after
// trimming and uppercasing; an empty code matches nobody.
func (s *UserService) ResolveByInviteCode(ctx context.Context, code string) (*models.User, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("resolve invite code: %w", ErrNotFound)
	}
	user, err := s.userRepo.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, storeErr("resolve invite code", err)
	}
	return user, nil
}

// FetchByID retrieves a user by ID
func (s *UserService) FetchByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("fetch user", err)
	}
	return user, nil
}

// FetchMany retrieves users by id in one round trip. Ids that do not exist
// are absent from the result.
func (s *UserService) FetchMany(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr("fetch users", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// CreateOrGet returns the user bound to externalID, creating one on first
// sight. created reports whether a new record was written.
func (s *UserService) CreateOrGet(ctx context.Context, externalID, discoveredName string) (*models.User, bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, false, fmt.Errorf("external id is empty: %w", ErrInvalidInput)
	}

	existing, err := s.userRepo.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		return existing, false, nil
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrSchemaMissing):
		// absent, create below
	default:
		return nil, false, storeErr("lookup user", err)
	}

	name := strings.TrimSpace(discoveredName)
	if name == "" {
		name = PlaceholderName
	}
	user := &models.User{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		DisplayName: name,
		CreatedAt:   s.now().UTC(),
	}

	// A conflict is either the same identity registered concurrently or
	// another registration taking the invite code first; only the latter
	// is retried with a fresh code.
	for attempt := 1; ; attempt++ {
		code, err := s.GenerateUniqueCode(ctx)
		if err != nil {
			return nil, false, err
		}
		user.InviteCode = code

		err = s.userRepo.Create(ctx, user)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, storeErr("create user", err)
		}

		winner, rerr := s.userRepo.GetByExternalID(ctx, externalID)
		if rerr == nil {
			return winner, false, nil
		}
		if !errors.Is(rerr, repository.ErrNotFound) || attempt == maxCodeAttempts {
			return nil, false, storeErr("create user", err)
		}
		log.Debug().Str("invite_code", code).Msg("Invite code taken concurrently, retrying")
	}

	log.Info().Str("user_id", user.ID).Str("invite_code", user.InviteCode).Msg("User created")
	return user, true, nil
}

// UpdateProfile changes the display name and returns the updated user
func (s *UserService) UpdateProfile(ctx context.Context, userID, displayName string) (*models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("display name is empty: %w", ErrInvalidInput)
	}
	if err := s.userRepo.UpdateDisplayName(ctx, userID, displayName); err != nil {
		return nil, storeErr("update profile", err)
	}
	return s.FetchByID(ctx, userID)
}

// UpdatePushToken stores the device push token. An empty token clears it.
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	var token *string
	if t := strings.TrimSpace(pushToken); t != "" {
		token = &t
	}
	if err := s.userRepo.UpdatePushToken(ctx, userID, token); err != nil {
		return storeErr("update push token", err)
	}
	return nil
}
