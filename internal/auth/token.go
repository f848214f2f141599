// Package auth inspects the backend-issued JWTs and carries the acting user
// through request contexts. Signature verification belongs to the auth API.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token cannot be parsed or names no user.
	ErrInvalidToken = errors.New("invalid token")
)

var parser = jwt.NewParser()

func claimsOf(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Subject returns the user ID a token was issued for. The backend has used
// sub, id, _id and userId over time.
func Subject(token string) (string, error) {
	claims, err := claimsOf(token)
	if err != nil {
		return "", err
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	for _, key := range []string{"id", "_id", "userId"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrInvalidToken
}

// ExpiresAt returns the exp claim, or the zero time when the token has none.
func ExpiresAt(token string) (time.Time, error) {
	claims, err := claimsOf(token)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// CredentialKey names the stored token pair for one sign-in. It hashes the
// refresh token, or the access token when there is none, so a caller can only
// reach a pair whose refresh token it already holds.
func CredentialKey(access, refresh string) string {
	secret := refresh
	if secret == "" {
		secret = "access:" + access
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

type (
	userKey       struct{}
	credentialKey struct{}
)

// ContextWithCredential tags ctx with the token pair backend calls should use.
func ContextWithCredential(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, credentialKey{}, key)
}

// CredentialFromContext returns the token pair key for backend calls. Without
// one it falls back to the acting user.
func CredentialFromContext(ctx context.Context) (string, bool) {
	if key, ok := ctx.Value(credentialKey{}).(string); ok && key != "" {
		return key, true
	}
	return UserFromContext(ctx)
}

// ContextWithUser tags ctx with the acting user.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the acting user, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey{}).(string)
	return userID, ok && userID != ""
}
