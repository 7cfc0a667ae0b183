package auth

import (
	"context"
	"strings"
	"time"

	"kompli.org/internal/obs"
)

// Resolver computes effective permission sets from role assignments. The
// set is recomputed fresh on every call; there is no cross-request cache,
// so role and permission mutations take effect on the next resolution.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the union of the permission sets of all roles assigned to
// the user that are visible to the organization (global or owned by it).
// An assignment referencing a role outside that visibility set is a
// data-integrity violation: it is skipped with a surfaced warning, never
// granted. A user with zero roles resolves to the empty set.
func (r *Resolver) Resolve(ctx context.Context, userID, organizationID string) (PermissionSet, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return nil, ErrInvalidInput
	}

	roles := r.store.Roles(ctx)
	perms := r.store.Permissions(ctx)

	assignments, err := roles.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(PermissionSet)
	if len(assignments) == 0 {
		return set, nil
	}

	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.RoleID)
	}
	assigned, err := roles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, role := range assigned {
		if !role.VisibleTo(organizationID) {
			integrityWarning(userID, organizationID, role)
			continue
		}
		list, err := perms.PermissionsForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range list {
			set[p.Code] = struct{}{}
		}
	}
	return set, nil
}

// Authorize reports whether the user holds the required permission within
// the organization. A missing permission is a plain false, never an error.
func (r *Resolver) Authorize(ctx context.Context, userID, organizationID, required string) (bool, error) {
	set, err := r.Resolve(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	return set.Allows(required), nil
}

func integrityWarning(userID, organizationID string, role *Role) {
	obs.LogEvent(map[string]any{
		"ts":              time.Now().UTC().Format(time.RFC3339Nano),
		"level":           "warn",
		"msg":             "integrity: assignment references role outside organization visibility, grant ignored",
		"user_id":         userID,
		"organization_id": organizationID,
		"role_id":         role.ID,
		"role_org_id":     role.OrganizationID,
	})
}
