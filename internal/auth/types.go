package auth

import "time"

// Organization is the tenant boundary. Every user belongs to exactly one
// organization and all resource access is implicitly filtered by it.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an identity record. Deactivation is the terminal state; users are
// never physically deleted while referential history exists.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Role is a named bundle of permissions. An empty OrganizationID marks a
// global role visible to all tenants; otherwise the role belongs to one
// organization. Name uniqueness is scoped per owning namespace.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Global reports whether the role is visible to every tenant.
func (r Role) Global() bool { return r.OrganizationID == "" }

// VisibleTo reports whether the role may be granted inside the given
// organization.
func (r Role) VisibleTo(organizationID string) bool {
	return r.Global() || r.OrganizationID == organizationID
}

// Permission is an atomic capability identified by a stable code.
type Permission struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment grants a user a role within the user's own organization.
type Assignment struct {
	UserID         string    `json:"user_id"`
	RoleID         string    `json:"role_id"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// RevocationRecord marks a token identifier as revoked before its natural
// expiry. Records are keyed per token (jti); ExpiresAt carries the token's
// own expiry so stale records can be pruned.
type RevocationRecord struct {
	TokenID   string    `json:"token_id"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PermissionSet is the resolved effective permission set of a user within
// one organization.
type PermissionSet map[string]struct{}

// Has reports direct membership of a permission code.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Allows reports whether the set satisfies the required permission, either
// directly or through the wildcard code carried by the admin role.
func (s PermissionSet) Allows(code string) bool {
	if code == "" {
		return false
	}
	return s.Has(code) || s.Has(PermissionAll)
}
