package middleware

import (
	"errors"
	"net/http"

	"github.com/eventhub-live/server/internal/api/problem"
	"github.com/eventhub-live/server/internal/auth"
	"github.com/eventhub-live/server/internal/domain/identity"
)

// RequireAuth authenticates the bearer token and stores the identity in
// the request context. Blocked users get 403, everything else invalid
// gets 401.
func RequireAuth(gate *identity.Gate, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, "https://eventhub.live/problems/unauthorized", "Missing credentials", err, env)
				return
			}

			user, err := gate.Authenticate(r.Context(), token)
			if err != nil {
				writeAuthProblem(w, r, err, env)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user)))
		})
	}
}

func writeAuthProblem(w http.ResponseWriter, r *http.Request, err error, env string) {
	switch {
	case errors.Is(err, identity.ErrBlocked):
		problem.Write(w, r, http.StatusForbidden, "https://eventhub.live/problems/blocked", "Account blocked", err, env)
	case errors.Is(err, identity.ErrUnauthorized):
		problem.Write(w, r, http.StatusUnauthorized, "https://eventhub.live/problems/unauthorized", "Invalid credentials", err, env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Authentication failed", err, env)
	}
}
