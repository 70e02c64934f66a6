package middleware

import (
	"context"

	"github.com/eventhub-live/server/internal/domain/identity"
)

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, user *identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, user)
}

// IdentityFromContext returns the authenticated caller, or nil on
// routes that never passed through RequireAuth.
func IdentityFromContext(ctx context.Context) *identity.Identity {
	user, _ := ctx.Value(identityKey).(*identity.Identity)
	return user
}
