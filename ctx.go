package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithContext sets the AuthenticatedUser in the given context
func WithContext(r context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the authenticated user from the context.
func FromContext(ctx context.Context) (*AuthenticatedUser, bool) {
	raw, ok := ctx.Value(userCtxKey).(*AuthenticatedUser)
	return raw, ok
}

// GetRouterUser extracts the AuthenticatedUser from the router context
func GetRouterUser(ctx router.Context, key string) (*AuthenticatedUser, bool) {
	if key == "" {
		key = "user"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	user, ok := raw.(*AuthenticatedUser)
	return user, ok
}
