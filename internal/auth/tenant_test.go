package auth

import (
	"errors"
	"testing"
)

func TestScopeCheck(t *testing.T) {
	cases := []struct {
		name        string
		resourceOrg string
		callerOrg   string
		grants      PermissionSet
		wantErr     bool
	}{
		{"same org", "org-a", "org-a", nil, false},
		{"different org", "org-b", "org-a", nil, true},
		{"different org with cross grant", "org-b", "org-a", PermissionSet{PermissionCrossTenant: {}}, false},
		{"different org with unrelated grant", "org-b", "org-a", PermissionSet{PermissionDocumentRead: {}}, true},
		{"empty resource org", "", "org-a", PermissionSet{PermissionCrossTenant: {}}, true},
		{"empty caller org", "org-a", "", PermissionSet{PermissionCrossTenant: {}}, true},
		{"both empty", "", "", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ScopeCheckWithGrants(tc.resourceOrg, tc.callerOrg, tc.grants)
			if tc.wantErr {
				if !errors.Is(err, ErrCrossTenant) {
					t.Fatalf("want ErrCrossTenant, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestScopeCheckWithoutGrantsNeverCrosses(t *testing.T) {
	if err := ScopeCheck("org-a", "org-a"); err != nil {
		t.Fatalf("same org: %v", err)
	}
	if err := ScopeCheck("org-b", "org-a"); !errors.Is(err, ErrCrossTenant) {
		t.Fatalf("want ErrCrossTenant, got %v", err)
	}
}
