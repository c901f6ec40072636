package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// APIKeyAuthenticator implements authentication using static API keys
type APIKeyAuthenticator struct {
	validKeys map[[sha256.Size]byte]string
}

// NewAPIKeyAuthenticator creates a new API key authenticator. Blank keys
// are ignored.
func NewAPIKeyAuthenticator(keys []string) *APIKeyAuthenticator {
	validKeys := make(map[[sha256.Size]byte]string)
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		sum := sha256.Sum256([]byte(key))
		validKeys[sum] = "key-" + hex.EncodeToString(sum[:4])
	}

	return &APIKeyAuthenticator{validKeys: validKeys}
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuthenticator) Enabled() bool {
	return len(a.validKeys) > 0
}

// Authenticate validates a token and returns a client ID derived from the
// key's digest, so the key itself never reaches the logs.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", ErrAuthenticationFailed
	}

	sum := sha256.Sum256([]byte(token))
	for known, clientID := range a.validKeys {
		if subtle.ConstantTimeCompare(known[:], sum[:]) == 1 {
			return clientID, nil
		}
	}
	return "", ErrInvalidToken
}
