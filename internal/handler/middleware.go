package handler

import (
	"context"
	"net/http"

	"github.com/mfreitas/paperbroker/internal/auth"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "pb_session"

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey int

const userIDKey ctxKey = 0

// CurrentUser returns the authenticated user ID placed in the request
// context by requireSession. The bool is false for unauthenticated requests.
func CurrentUser(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// requireSession resolves the session cookie into an explicit user identity
// on the request context. Requests without a valid session get 401; the
// downstream handlers and the ledger never read ambient session state.
func requireSession(sessions *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Login required")
				return
			}

			userID, ok := sessions.Resolve(cookie.Value)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Session is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
