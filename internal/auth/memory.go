package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"kompli.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store in process memory. It backs the test suites
// and the dev server; a single mutex makes every operation, including the
// revocation check, linearizable.
type MemoryStore struct {
	mu sync.RWMutex

	organizations map[string]Organization
	users         map[string]User
	roles         map[string]Role
	permissions   map[string]Permission   // by code
	rolePerms     map[string][]string     // role id -> permission codes
	assignments   map[string][]Assignment // user id -> assignments
	revoked       map[string]RevocationRecord

	now func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		organizations: make(map[string]Organization),
		users:         make(map[string]User),
		roles:         make(map[string]Role),
		permissions:   make(map[string]Permission),
		rolePerms:     make(map[string][]string),
		assignments:   make(map[string][]Assignment),
		revoked:       make(map[string]RevocationRecord),
		now:           time.Now,
	}
}

// SetClock replaces the store's time source. Callers that inject a clock
// into the Issuer must hand the same clock to the store, otherwise the
// revocation prune below would judge token expiry on a different timeline.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Organizations(context.Context) OrganizationStore { return (*memOrgs)(m) }
func (m *MemoryStore) Users(context.Context) UserStore                 { return (*memUsers)(m) }
func (m *MemoryStore) Roles(context.Context) RoleStore                 { return (*memRoles)(m) }
func (m *MemoryStore) Permissions(context.Context) PermissionStore     { return (*memPerms)(m) }
func (m *MemoryStore) Revocations(context.Context) RevocationStore     { return (*memRevocations)(m) }

// Organizations ------------------------------------------------------------

type memOrgs MemoryStore

func (m *memOrgs) Create(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if org.ID == "" {
		org.ID = ids.New()
	}
	for _, existing := range m.organizations {
		if existing.Name == org.Name {
			return ErrConflict
		}
	}
	now := m.now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now
	m.organizations[org.ID] = *org
	return nil
}

func (m *memOrgs) Find(_ context.Context, id string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.organizations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &org, nil
}

func (m *memOrgs) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.organizations[id]
	if !ok {
		return ErrNotFound
	}
	org.Active = active
	org.UpdatedAt = m.now().UTC()
	m.organizations[id] = org
	return nil
}

func (m *memOrgs) List(_ context.Context) ([]*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Organization, 0, len(m.organizations))
	for _, org := range m.organizations {
		o := org
		out = append(out, &o)
	}
	return out, nil
}

// Users --------------------------------------------------------------------

type memUsers MemoryStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range m.users {
		if strings.ToLower(existing.Email) == email {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := m.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range m.users {
		if strings.ToLower(u.Email) == email {
			found := u
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) ListByOrg(_ context.Context, orgID string) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*User
	for _, u := range m.users {
		if u.OrganizationID == orgID {
			found := u
			out = append(out, &found)
		}
	}
	return out, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = m.now().UTC()
	m.users[userID] = u
	return nil
}

func (m *memUsers) SetActive(_ context.Context, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = m.now().UTC()
	m.users[userID] = u
	return nil
}

// Roles --------------------------------------------------------------------

type memRoles MemoryStore

func (m *memRoles) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == role.Name && existing.OrganizationID == role.OrganizationID {
			return ErrConflict
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := m.now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	m.roles[role.ID] = *role
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &role, nil
}

func (m *memRoles) FindByIDs(_ context.Context, roleIDs []string) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		if role, ok := m.roles[id]; ok {
			found := role
			out = append(out, &found)
		}
	}
	return out, nil
}

func (m *memRoles) ListVisible(_ context.Context, orgID string) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Role
	for _, role := range m.roles {
		if role.VisibleTo(orgID) {
			found := role
			out = append(out, &found)
		}
	}
	return out, nil
}

func (m *memRoles) Assign(_ context.Context, assignment Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments[assignment.UserID] {
		if existing.RoleID == assignment.RoleID {
			return nil
		}
	}
	assignment.CreatedAt = m.now().UTC()
	m.assignments[assignment.UserID] = append(m.assignments[assignment.UserID], assignment)
	return nil
}

func (m *memRoles) Unassign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.assignments[userID]
	out := list[:0]
	for _, a := range list {
		if a.RoleID != roleID {
			out = append(out, a)
		}
	}
	m.assignments[userID] = out
	return nil
}

func (m *memRoles) Assignments(_ context.Context, userID string) ([]Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Assignment(nil), m.assignments[userID]...), nil
}

// Permissions --------------------------------------------------------------

type memPerms MemoryStore

func (m *memPerms) Ensure(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.permissions[p.Code]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		p.CreatedAt = m.now().UTC()
		m.permissions[p.Code] = p
	}
	return nil
}

func (m *memPerms) List(_ context.Context) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPerms) SetForRole(_ context.Context, roleID string, codes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, code := range codes {
		if _, ok := m.permissions[code]; !ok {
			return ErrNotFound
		}
	}
	// Replacement under the lock is atomic with respect to readers.
	m.rolePerms[roleID] = append([]string(nil), codes...)
	return nil
}

func (m *memPerms) PermissionsForRole(_ context.Context, roleID string) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := m.rolePerms[roleID]
	out := make([]Permission, 0, len(codes))
	for _, code := range codes {
		if p, ok := m.permissions[code]; ok {
			out = append(out, p)
		}
		// A code that left the catalog is skipped, not fatal.
	}
	return out, nil
}

// Revocations --------------------------------------------------------------

type memRevocations MemoryStore

func (m *memRevocations) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func (m *memRevocations) RecordRevocation(_ context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = RevocationRecord{
		TokenID:   tokenID,
		RevokedAt: m.now().UTC(),
		ExpiresAt: expiresAt,
	}
	// Prune records whose tokens have long self-expired. The record just
	// written is never a candidate; it must survive this call even if the
	// caller's token clock disagrees with ours.
	cutoff := m.now().UTC().Add(-time.Hour)
	for id, rec := range m.revoked {
		if id == tokenID {
			continue
		}
		if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(cutoff) {
			delete(m.revoked, id)
		}
	}
	return nil
}
