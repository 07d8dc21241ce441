package resolver

import (
	"context"

	"github.com/listenupapp/library-server/internal/domain"
)

type currentUserKey struct{}

// WithCurrentUser returns a context whose requests run as user.
func WithCurrentUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, currentUserKey{}, user)
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(ctx context.Context) *domain.User {
	u, _ := ctx.Value(currentUserKey{}).(*domain.User)
	return u
}
