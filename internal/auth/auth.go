// Package auth provides JWT issuance and verification plus the middleware
// that injects the authenticated username into the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

const tokenTTL = 24 * time.Hour

type contextKey int

const userNameKey contextKey = iota

// UserNameFromContext extracts the authenticated username from the request
// context. Empty when the request was not authenticated.
func UserNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userNameKey).(string); ok {
		return v
	}
	return ""
}

// WithUserName returns a context carrying the authenticated username. Used by
// the middleware and by handler tests.
func WithUserName(ctx context.Context, userName string) context.Context {
	return context.WithValue(ctx, userNameKey, userName)
}

// claims is the JWT payload: the username plus standard registered claims.
type claims struct {
	UserName string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a TokenManager signing with the given secret.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Issue creates a signed token for userName, valid for 24 hours.
func (tm *TokenManager) Issue(userName string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserName: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})

	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the username it carries.
func (tm *TokenManager) Verify(tokenString string) (string, error) {
	var payload claims
	token, err := jwt.ParseWithClaims(tokenString, &payload, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return tm.secret, nil
	})
	if err != nil || !token.Valid || payload.UserName == "" {
		return "", ErrInvalidToken
	}
	return payload.UserName, nil
}

// Middleware authenticates requests via the Authorization bearer token and
// stores the username in the request context. Unauthenticated requests get
// 401.
func Middleware(tm *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, `{"error": "missing authorization token"}`, http.StatusUnauthorized)
				return
			}

			userName, err := tm.Verify(tokenString)
			if err != nil {
				http.Error(w, `{"error": "invalid authorization token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserName(r.Context(), userName)))
		})
	}
}
