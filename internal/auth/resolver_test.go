package auth

import (
	"context"
	"testing"
)

type fixture struct {
	store    *MemoryStore
	resolver *Resolver
	ctx      context.Context
}

func newResolverFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Permissions(ctx).Ensure(ctx, BuiltinPermissions); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return &fixture{store: store, resolver: NewResolver(store), ctx: ctx}
}

func (f *fixture) addOrg(t *testing.T, name string) *Organization {
	t.Helper()
	org := &Organization{Name: name, Active: true}
	if err := f.store.Organizations(f.ctx).Create(f.ctx, org); err != nil {
		t.Fatalf("create org: %v", err)
	}
	return org
}

func (f *fixture) addUser(t *testing.T, orgID, email string) *User {
	t.Helper()
	user := &User{OrganizationID: orgID, Email: email, PasswordHash: "x", Active: true}
	if err := f.store.Users(f.ctx).Create(f.ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (f *fixture) addRole(t *testing.T, orgID, name string, codes ...string) *Role {
	t.Helper()
	role := &Role{OrganizationID: orgID, Name: name}
	if err := f.store.Roles(f.ctx).Create(f.ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if len(codes) > 0 {
		if err := f.store.Permissions(f.ctx).SetForRole(f.ctx, role.ID, codes); err != nil {
			t.Fatalf("set role permissions: %v", err)
		}
	}
	return role
}

func (f *fixture) assign(t *testing.T, user *User, role *Role) {
	t.Helper()
	err := f.store.Roles(f.ctx).Assign(f.ctx, Assignment{
		UserID:         user.ID,
		RoleID:         role.ID,
		OrganizationID: user.OrganizationID,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
}

func TestResolveUnionsRolePermissionSets(t *testing.T) {
	f := newResolverFixture(t)
	org := f.addOrg(t, "Org A")
	user := f.addUser(t, org.ID, "alice@x.com")

	viewer := f.addRole(t, org.ID, "viewer", PermissionDocumentRead)
	editor := f.addRole(t, org.ID, "editor", PermissionDocumentRead, PermissionDocumentWrite)
	f.assign(t, user, viewer)
	f.assign(t, user, editor)

	set, err := f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(set) != 2 || !set.Has(PermissionDocumentRead) || !set.Has(PermissionDocumentWrite) {
		t.Fatalf("unexpected set: %v", set)
	}
}

func TestResolveZeroRolesIsEmptyNotError(t *testing.T) {
	f := newResolverFixture(t)
	org := f.addOrg(t, "Org A")
	user := f.addUser(t, org.ID, "nobody@x.com")

	set, err := f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set, got %v", set)
	}
	ok, err := f.resolver.Authorize(f.ctx, user.ID, org.ID, PermissionDocumentRead)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if ok {
		t.Fatalf("authorize must be false for zero roles")
	}
}

func TestResolveIgnoresRoleOutsideVisibility(t *testing.T) {
	f := newResolverFixture(t)
	orgA := f.addOrg(t, "Org A")
	orgB := f.addOrg(t, "Org B")
	user := f.addUser(t, orgA.ID, "alice@x.com")

	foreign := f.addRole(t, orgB.ID, "foreign-admin", PermissionAll)
	ours := f.addRole(t, orgA.ID, "viewer", PermissionDocumentRead)

	// Simulate a data-integrity violation: an assignment pointing at
	// another tenant's role.
	f.assign(t, user, foreign)
	f.assign(t, user, ours)

	set, err := f.resolver.Resolve(f.ctx, user.ID, orgA.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Has(PermissionAll) {
		t.Fatalf("foreign role's grants must never apply")
	}
	if !set.Has(PermissionDocumentRead) {
		t.Fatalf("legitimate grant lost: %v", set)
	}
}

func TestResolveIncludesGlobalRoles(t *testing.T) {
	f := newResolverFixture(t)
	org := f.addOrg(t, "Org A")
	user := f.addUser(t, org.ID, "admin@x.com")

	admin := f.addRole(t, "", "admin", PermissionAll)
	f.assign(t, user, admin)

	set, err := f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !set.Allows(PermissionDocumentWrite) {
		t.Fatalf("wildcard should satisfy any requirement")
	}
	if !set.Has(PermissionAll) {
		t.Fatalf("expected wildcard membership: %v", set)
	}
}

func TestResolveMonotonicInRoleAssignment(t *testing.T) {
	f := newResolverFixture(t)
	org := f.addOrg(t, "Org A")
	user := f.addUser(t, org.ID, "alice@x.com")
	viewer := f.addRole(t, org.ID, "viewer", PermissionDocumentRead)
	editor := f.addRole(t, org.ID, "editor", PermissionDocumentWrite)

	f.assign(t, user, viewer)
	before, err := f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	f.assign(t, user, editor)
	after, err := f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for code := range before {
		if !after.Has(code) {
			t.Fatalf("adding a role removed %q", code)
		}
	}
	if !after.Has(PermissionDocumentWrite) {
		t.Fatalf("added role's permission missing")
	}
}

func TestResolveReflectsRoleMutationImmediately(t *testing.T) {
	f := newResolverFixture(t)
	org := f.addOrg(t, "Org A")
	user := f.addUser(t, org.ID, "alice@x.com")
	editor := f.addRole(t, org.ID, "editor", PermissionDocumentRead, PermissionDocumentWrite)
	f.assign(t, user, editor)

	set, err := f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !set.Has(PermissionDocumentWrite) {
		t.Fatalf("precondition failed: %v", set)
	}

	// Permission is removed while tokens referencing the role are still
	// outstanding; the next resolution reflects the removal.
	if err := f.store.Permissions(f.ctx).SetForRole(f.ctx, editor.ID, []string{PermissionDocumentRead}); err != nil {
		t.Fatalf("SetForRole: %v", err)
	}
	set, err = f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Has(PermissionDocumentWrite) {
		t.Fatalf("stale permission survived recomputation: %v", set)
	}
	if !set.Has(PermissionDocumentRead) {
		t.Fatalf("unrelated permission lost: %v", set)
	}
}

func TestResolveRemovalLeavesNoResidue(t *testing.T) {
	f := newResolverFixture(t)
	org := f.addOrg(t, "Org A")
	user := f.addUser(t, org.ID, "alice@x.com")
	viewer := f.addRole(t, org.ID, "viewer", PermissionDocumentRead)
	editor := f.addRole(t, org.ID, "editor", PermissionDocumentRead, PermissionDocumentWrite)
	f.assign(t, user, viewer)
	f.assign(t, user, editor)

	if err := f.store.Roles(f.ctx).Unassign(f.ctx, user.ID, editor.ID); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	set, err := f.resolver.Resolve(f.ctx, user.ID, org.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Has(PermissionDocumentWrite) {
		t.Fatalf("permission unique to removed role survived: %v", set)
	}
	if !set.Has(PermissionDocumentRead) {
		t.Fatalf("shared permission lost: %v", set)
	}
}
