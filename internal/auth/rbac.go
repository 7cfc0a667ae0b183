package auth

import (
	"context"
	"fmt"
	"strings"
)

// Management operations over organizations, users, roles and permissions.
// These back the admin surface; every input is validated and normalized
// before it reaches the store.

// CreateOrganization registers a new active tenant.
func (s *Service) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	org := &Organization{Name: name, Active: true}
	if err := s.store.Organizations(ctx).Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// CreateUser creates an active user inside the organization. The plaintext
// secret is hashed here and never stored or logged.
func (s *Service) CreateUser(ctx context.Context, organizationID, email, secret string) (*User, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(secret)
	if err != nil {
		return nil, err
	}
	user := &User{
		OrganizationID: organizationID,
		Email:          email,
		PasswordHash:   hash,
		Active:         true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Register is the self-registration flow: it creates the user and grants
// the organization's default roles, if any exist.
func (s *Service) Register(ctx context.Context, organizationID, email, secret string) (*User, error) {
	user, err := s.CreateUser(ctx, organizationID, email, secret)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.Roles(ctx).ListVisible(ctx, user.OrganizationID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if !role.IsDefault {
			continue
		}
		assignment := Assignment{
			UserID:         user.ID,
			RoleID:         role.ID,
			OrganizationID: user.OrganizationID,
		}
		if err := s.store.Roles(ctx).Assign(ctx, assignment); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// DeactivateUser is the terminal lifecycle state; records are never
// physically deleted while referential history exists.
func (s *Service) DeactivateUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).SetActive(ctx, userID, false)
}

// SetOrganizationActive suspends or restores a whole tenant. Logins and
// refreshes for its users fail while it is inactive.
func (s *Service) SetOrganizationActive(ctx context.Context, organizationID string, active bool) error {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.Organizations(ctx).SetActive(ctx, organizationID, active)
}

// ChangePassword verifies the current secret before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(next) == "" {
		return fmt.Errorf("%w: user_id and new password are required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// ResetPassword replaces a user's secret without checking the current one.
// It is an administrative operation; callers gate it on user management.
func (s *Service) ResetPassword(ctx context.Context, userID, next string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(next) == "" {
		return fmt.Errorf("%w: user_id and new password are required", ErrInvalidInput)
	}
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// CreateRole creates a role owned by the organization, or a global role
// when organizationID is empty. Name uniqueness is scoped: the global
// namespace and each organization's namespace are independent.
func (s *Service) CreateRole(ctx context.Context, organizationID, name, description string, isDefault bool) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		OrganizationID: strings.TrimSpace(organizationID),
		Name:           name,
		Description:    strings.TrimSpace(description),
		IsDefault:      isDefault,
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRolePermissions replaces the role's permission set. Codes must exist
// in the catalog; unknown codes are rejected rather than silently dropped.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, codes []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return err
	}
	return s.store.Permissions(ctx).SetForRole(ctx, roleID, dedupeCodes(codes))
}

// AssignRole grants a role to a user. The role must be visible to the
// user's own organization; a user may never hold a role belonging to a
// different tenant.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) (*Assignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !role.VisibleTo(user.OrganizationID) {
		return nil, fmt.Errorf("%w: role belongs to another organization", ErrCrossTenant)
	}
	assignment := Assignment{
		UserID:         user.ID,
		RoleID:         role.ID,
		OrganizationID: user.OrganizationID,
	}
	if err := s.store.Roles(ctx).Assign(ctx, assignment); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// UnassignRole removes a role grant. Removing a role removes exactly the
// permissions unique to it from the next resolution; recomputation is
// idempotent and leaves no residual state.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Unassign(ctx, userID, roleID)
}

// FindUser loads a user record, tenant-checked by the caller.
func (s *Service) FindUser(ctx context.Context, userID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Find(ctx, userID)
}

// FindRole loads a role record, global or org-owned.
func (s *Service) FindRole(ctx context.Context, roleID string) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Find(ctx, roleID)
}

// FindOrganization loads a tenant record.
func (s *Service) FindOrganization(ctx context.Context, id string) (*Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.Organizations(ctx).Find(ctx, id)
}

// ListOrganizations returns every tenant, active or not.
func (s *Service) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	return s.store.Organizations(ctx).List(ctx)
}

// ListUsers returns the organization's users.
func (s *Service) ListUsers(ctx context.Context, organizationID string) ([]*User, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).ListByOrg(ctx, organizationID)
}

// ListRoles returns the roles usable inside the organization: its own
// plus the global ones.
func (s *Service) ListRoles(ctx context.Context, organizationID string) ([]*Role, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).ListVisible(ctx, organizationID)
}

// ListPermissionCatalog returns every permission code the platform knows.
func (s *Service) ListPermissionCatalog(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

func dedupeCodes(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
