package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// The backing store is the sole source of truth; no entity is cached across
// requests.
type Store interface {
	Organizations(ctx context.Context) OrganizationStore
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Revocations(ctx context.Context) RevocationStore
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByOrg(ctx context.Context, orgID string) ([]*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetActive(ctx context.Context, userID string, active bool) error
}

// RoleStore manages roles and user-role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Role, error)
	// ListVisible returns global roles plus the organization's own roles.
	ListVisible(ctx context.Context, orgID string) ([]*Role, error)
	Assign(ctx context.Context, assignment Assignment) error
	Unassign(ctx context.Context, userID, roleID string) error
	Assignments(ctx context.Context, userID string) ([]Assignment, error)
}

// PermissionStore manages the permission catalog and role bindings.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	// SetForRole replaces the role's permission set atomically: a reader
	// mid-resolution sees either the old set entirely or the new one.
	SetForRole(ctx context.Context, roleID string, codes []string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
}

// RevocationStore tracks revoked token identifiers. Lookups must be
// linearizable per token id: once RecordRevocation returns, IsTokenRevoked
// for that id never reports false again.
type RevocationStore interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	RecordRevocation(ctx context.Context, tokenID string, expiresAt time.Time) error
}
