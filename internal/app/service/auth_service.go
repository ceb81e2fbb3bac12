package service

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sifan077/shortener/internal/app/repository"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrMissingAPIKey means the request carried no API key.
	ErrMissingAPIKey = errors.New("no api key provided")
	// ErrInvalidAPIKey means the API key does not match the stored digest.
	ErrInvalidAPIKey = errors.New("incorrect api key supplied")
)

// Authenticator decides whether an API key may use the protected routes.
type Authenticator interface {
	// Authenticate returns nil to allow, ErrMissingAPIKey or ErrInvalidAPIKey
	// to deny, and any other error when the key could not be checked.
	Authenticate(ctx context.Context, apiKey string) error
}

type apiKeyAuthenticator struct {
	settings repository.SettingsRepository
}

// NewAuthenticator checks keys against the digest in the settings row.
func NewAuthenticator(settings repository.SettingsRepository) Authenticator {
	return &apiKeyAuthenticator{settings: settings}
}

func (a *apiKeyAuthenticator) Authenticate(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return ErrMissingAPIKey
	}

	settings, err := a.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load api key: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(HashAPIKey(apiKey)), []byte(settings.EncryptedAPIKey)) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}

// HashAPIKey returns the lowercase hex SHA3-256 digest stored for key.
func HashAPIKey(key string) string {
	sum := sha3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
