// Package auth carries the authenticated user through request contexts and
// decides who may use the API: bearer tokens are HS256 JWTs, and every
// verified email must also appear on the whitelist.
package auth

import (
	"context"

	"github.com/pkordes/travelogue/internal/domain"
)

// Identity is the authenticated user.
type Identity struct {
	UID     string
	Email   string
	IsAdmin bool
}

// OwnerID is the value stamped into a trip's userId: the email when known,
// otherwise the uid.
func (id Identity) OwnerID() string {
	if id.Email != "" {
		return id.Email
	}
	return id.UID
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || (id.UID == "" && id.Email == "") {
		return Identity{}, false
	}
	return id, true
}

// Require returns the identity in ctx or domain.ErrUnauthenticated.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}
