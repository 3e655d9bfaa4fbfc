package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/freelancehub/internal/auth"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "session"

// TokenValidator validates session tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// tokenFromRequest prefers "Authorization: Bearer" over the session cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth rejects requests without a valid session token with 401 and
// stores the user ID and username in the context otherwise. metrics may be nil.
func RequireAuth(validator TokenValidator, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fail := func(reason, message string) {
				if metrics != nil {
					metrics.IncAuthFailures(reason)
				}
				writeError(w, r.Context(), http.StatusUnauthorized, errCodeAuthFailed, message)
			}

			token := tokenFromRequest(r)
			if token == "" {
				fail("missing", "Authentication required")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					fail("expired", "Session expired")
				} else {
					fail("invalid", "Invalid session")
				}
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				fail("invalid", "Invalid session")
				return
			}

			ctx := SetUser(r.Context(), userID, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
