package http

import (
	"net/http"
	"strings"

	"gig-geni-service/internal/auth"
	"gig-geni-service/internal/backend"
	"gig-geni-service/internal/domain"
	"go.uber.org/zap"
)

// RefreshTokenHeader carries the refresh token alongside the bearer token.
const RefreshTokenHeader = "X-Refresh-Token"

// Authenticate resolves the caller from the bearer token, keeps the pair in
// tokens for backend calls, and puts the user ID on the request context.
// Pairs are stored under auth.CredentialKey, so a request only ever reaches
// tokens tied to the refresh token it presented. The subject is read without
// verifying the signature; the backend rejects forged tokens on first use.
// Browsers cannot set headers on websocket upgrades, so the token may also
// arrive as ?token= and ?refreshToken=.
func Authenticate(tokens backend.TokenStore, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, refresh := credentials(r)
			if access == "" {
				writeError(w, logger, domain.ErrUnauthenticated)
				return
			}
			userID, err := auth.Subject(access)
			if err != nil {
				writeError(w, logger, domain.ErrUnauthenticated)
				return
			}

			ctx := r.Context()
			key := auth.CredentialKey(access, refresh)
			presented := domain.TokenPair{AccessToken: access, RefreshToken: refresh}
			stored, err := tokens.Get(ctx, key)
			switch {
			case err != nil:
				if err := tokens.Put(ctx, key, presented); err != nil {
					logger.Warn("store tokens", zap.String("user", userID), zap.Error(err))
				}
			case stored.AccessToken == access:
			case subjectOf(stored.AccessToken) != userID:
				writeError(w, logger, domain.ErrUnauthenticated)
				return
			case newer(access, stored.AccessToken):
				if err := tokens.Put(ctx, key, presented); err != nil {
					logger.Warn("store tokens", zap.String("user", userID), zap.Error(err))
				}
			}
			// Otherwise the stored pair is ours from a refresh the client has not seen.

			ctx = auth.ContextWithCredential(auth.ContextWithUser(ctx, userID), key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func credentials(r *http.Request) (access, refresh string) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		access = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	refresh = r.Header.Get(RefreshTokenHeader)
	if access == "" {
		access = r.URL.Query().Get("token")
	}
	if refresh == "" {
		refresh = r.URL.Query().Get("refreshToken")
	}
	return access, refresh
}

func subjectOf(token string) string {
	sub, _ := auth.Subject(token)
	return sub
}

// newer reports whether token a expires after token b.
func newer(a, b string) bool {
	expA, errA := auth.ExpiresAt(a)
	expB, errB := auth.ExpiresAt(b)
	if errA != nil || errB != nil {
		return false
	}
	return expA.After(expB)
}
