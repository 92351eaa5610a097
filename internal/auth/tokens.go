// internal/auth/tokens.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrVerifierUnavailable means the credential verifier could not be reached.
// It is distinct from a rejected token.
var ErrVerifierUnavailable = errors.New("credential verifier unavailable")

// Principal is the identity a token asserts.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Result is the outcome of verifying a token.
type Result struct {
	Valid bool       `json:"valid"`
	User  *Principal `json:"user,omitempty"`
}

// Verifier validates bearer tokens. Implementations report an invalid token
// as Result{Valid: false} and reserve errors for infrastructure failures.
type Verifier interface {
	Verify(ctx context.Context, token string) (Result, error)
}

// Claims are the JWT claims carried by every bookswap token.
type Claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens with a shared secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager. Every service given the same
// secret accepts tokens issued by any other.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for the given user, valid for the configured TTL.
func (m *TokenManager) Issue(id int64, username string) (string, error) {
	now := m.now()
	claims := Claims{
		ID:       id,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. It never returns an error.
func (m *TokenManager) Verify(_ context.Context, token string) (Result, error) {
	if token == "" {
		return Result{}, nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Result{}, nil
	}

	return Result{
		Valid: true,
		User:  &Principal{ID: claims.ID, Username: claims.Username},
	}, nil
}
