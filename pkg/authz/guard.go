// Package authz implements the broad-role and office-role checks that
// protect every report operation.
package authz

import (
	"context"
	"strings"

	"participium/pkg/apperr"
	"participium/pkg/identity"
)

// OfficeRole is one (office, role) pair held by a user.
type OfficeRole struct {
	OfficeID       int64
	OfficeName     string
	OfficeExternal bool
	RoleID         int64
	RoleName       string
}

// OfficeRoleDirectory resolves the office roles a user holds. It is queried
// on every check; results are never cached on the identity.
type OfficeRoleDirectory interface {
	RolesFor(ctx context.Context, userID int64) ([]OfficeRole, error)
}

// Guard bundles the authorization checks. Authentication is always checked
// before any role, since it changes the error kind.
type Guard struct {
	directory OfficeRoleDirectory
}

func NewGuard(directory OfficeRoleDirectory) *Guard {
	return &Guard{directory: directory}
}

// RequireBroadRole passes when the caller is authenticated and holds one of
// the allowed broad roles.
func (g *Guard) RequireBroadRole(id identity.Identity, allowed ...identity.BroadRole) error {
	if !id.Authenticated {
		return apperr.Unauthenticated("authentication required")
	}
	for _, role := range allowed {
		if id.Role.Is(role) {
			return nil
		}
	}
	return apperr.Forbidden("insufficient role")
}

// RequireNamedRole passes when the caller holds roleName in any office.
func (g *Guard) RequireNamedRole(ctx context.Context, id identity.Identity, roleName string) error {
	if !id.Authenticated {
		return apperr.Unauthenticated("authentication required")
	}
	roles, err := g.rolesFor(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r.RoleName), strings.TrimSpace(roleName)) {
			return nil
		}
	}
	return apperr.Forbidden("missing required office role")
}

// RequireElevationFor gates account creation: creating a STAFF account takes
// an authenticated ADMIN, anything else passes.
func (g *Guard) RequireElevationFor(id identity.Identity, requested identity.BroadRole) error {
	if !requested.Is(identity.RoleStaff) {
		return nil
	}
	if !id.Authenticated {
		return apperr.Unauthenticated("authentication required")
	}
	if !id.Role.Is(identity.RoleAdmin) {
		return apperr.Forbidden("only administrators can create staff accounts")
	}
	return nil
}

// RequireOfficeKind passes when the caller holds a role in at least one
// office whose external flag equals external, and returns those roles.
func (g *Guard) RequireOfficeKind(ctx context.Context, id identity.Identity, external bool) ([]OfficeRole, error) {
	if !id.Authenticated {
		return nil, apperr.Unauthenticated("authentication required")
	}
	roles, err := g.rolesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	var matched []OfficeRole
	for _, r := range roles {
		if r.OfficeExternal == external {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		if external {
			return nil, apperr.Forbidden("caller does not belong to an external office")
		}
		return nil, apperr.Forbidden("caller does not belong to an internal office")
	}
	return matched, nil
}

// OfficeRoles returns every office role the caller holds.
func (g *Guard) OfficeRoles(ctx context.Context, id identity.Identity) ([]OfficeRole, error) {
	if !id.Authenticated {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return g.rolesFor(ctx, id)
}

func (g *Guard) rolesFor(ctx context.Context, id identity.Identity) ([]OfficeRole, error) {
	roles, err := g.directory.RolesFor(ctx, id.CallerID)
	if err != nil {
		return nil, apperr.Internal("resolve office roles", err)
	}
	return roles, nil
}
