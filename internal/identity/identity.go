// Package identity verifies the credential a client presents when it first
// registers and turns it into a stable external id.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ErrInvalidCredential is returned for credentials that cannot be verified
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is what a verified credential tells us about the caller
type Identity struct {
	ExternalID string
	Name       string
}

// Verifier checks a client credential
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// DeviceVerifier trusts the credential as an opaque installation id
type DeviceVerifier struct{}

const maxDeviceIDLength = 256

// Verify accepts any non-empty credential of reasonable length
func (DeviceVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	id := strings.TrimSpace(credential)
	if id == "" || len(id) > maxDeviceIDLength {
		return nil, ErrInvalidCredential
	}
	return &Identity{ExternalID: "device:" + id}, nil
}

// tokenVerifier is the part of the Firebase auth client we use
type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier verifies Firebase ID tokens
type FirebaseVerifier struct {
	client tokenVerifier
}

// NewFirebaseVerifier initialises a Firebase app from a service account file
func NewFirebaseVerifier(ctx context.Context, credentialsFile string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify checks the ID token. The Firebase UID becomes the external id and
// the "name" claim, when present, the discovered display name.
func (v *FirebaseVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidCredential
	}
	token, err := v.client.VerifyIDToken(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	id := &Identity{ExternalID: "firebase:" + token.UID}
	if name, ok := token.Claims["name"].(string); ok {
		id.Name = strings.TrimSpace(name)
	}
	return id, nil
}
