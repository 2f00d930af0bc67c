// Package auth supplies bearer credentials to the sync dispatcher.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when no credential is configured.
var ErrMissingToken = errors.New("missing bearer token")

// ErrTokenExpired is returned for credentials past their expiry. Surfacing
// this before the request keeps the dispatcher from spending its retry
// budget on guaranteed 401s.
var ErrTokenExpired = errors.New("bearer token expired")

// TokenSource yields the bearer token attached to authority requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Suitable for opaque tokens whose
// lifetime the client cannot inspect.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource wraps a raw token string.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: strings.TrimSpace(token)}
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", ErrMissingToken
	}
	return s.token, nil
}

// JWTTokenSource holds a JWT and refuses to hand it out once expired. The
// client does not know the signing secret, so claims are read without
// signature verification; the authority remains the validator of record.
type JWTTokenSource struct {
	mu        sync.Mutex
	raw       string
	expiresAt time.Time
	now       func() time.Time
}

// NewJWTTokenSource parses the token's claims and captures its expiry.
func NewJWTTokenSource(raw string) (*JWTTokenSource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("unparseable bearer token: %w", err)
	}

	src := &JWTTokenSource{raw: raw, now: time.Now}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		src.expiresAt = exp.Time
	}
	return src, nil
}

// Token implements TokenSource.
func (s *JWTTokenSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", fmt.Errorf("%w (expired at %s)", ErrTokenExpired, s.expiresAt.UTC().Format(time.RFC3339))
	}
	return s.raw, nil
}

// Rotate swaps in a replacement token, typically after a refresh flow.
func (s *JWTTokenSource) Rotate(raw string) error {
	replacement, err := NewJWTTokenSource(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = replacement.raw
	s.expiresAt = replacement.expiresAt
	return nil
}
