// Package identity carries the caller identity resolved by the auth
// middleware through a request context.
package identity

import (
	"context"
	"strings"
)

// BroadRole is the coarse caller category stored on the user account.
type BroadRole string

const (
	RoleCitizen BroadRole = "CITIZEN"
	RoleStaff   BroadRole = "STAFF"
	RoleAdmin   BroadRole = "ADMIN"
)

// ParseBroadRole matches s case-insensitively against the known roles.
func ParseBroadRole(s string) (BroadRole, bool) {
	switch BroadRole(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleCitizen:
		return RoleCitizen, true
	case RoleStaff:
		return RoleStaff, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Is compares two roles ignoring case.
func (r BroadRole) Is(other BroadRole) bool {
	return strings.EqualFold(string(r), string(other))
}

// Identity is the per-request view of the caller.
type Identity struct {
	CallerID      int64
	Username      string
	Authenticated bool
	Role          BroadRole
}

// Anonymous is the identity of a request without valid credentials.
var Anonymous = Identity{}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Anonymous
}
