package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestStaticTokenSource(t *testing.T) {
	src := NewStaticTokenSource("opaque-token")
	token, err := src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "opaque-token", token)

	_, err = NewStaticTokenSource("  ").Token(context.Background())
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestJWTTokenSourceServesValidToken(t *testing.T) {
	raw := signedToken(t, time.Now().Add(time.Hour))
	src, err := NewJWTTokenSource(raw)
	require.NoError(t, err)

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, raw, token)
}

func TestJWTTokenSourceRefusesExpiredToken(t *testing.T) {
	raw := signedToken(t, time.Now().Add(time.Hour))
	src, err := NewJWTTokenSource(raw)
	require.NoError(t, err)

	src.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = src.Token(context.Background())
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTTokenSourceRotate(t *testing.T) {
	src, err := NewJWTTokenSource(signedToken(t, time.Now().Add(time.Minute)))
	require.NoError(t, err)

	fresh := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, src.Rotate(fresh))

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, token)
}

func TestJWTTokenSourceRejectsGarbage(t *testing.T) {
	_, err := NewJWTTokenSource("not-a-jwt")
	require.Error(t, err)
}
