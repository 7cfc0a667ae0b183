package auth

import "strings"

// ScopeCheck enforces tenant isolation: the resource must belong to the
// caller's organization. It runs even when the resolver would authorize the
// action; permission and tenancy are independent, both-must-pass gates.
func ScopeCheck(resourceOrganizationID, callerOrganizationID string) error {
	resourceOrganizationID = strings.TrimSpace(resourceOrganizationID)
	callerOrganizationID = strings.TrimSpace(callerOrganizationID)
	if resourceOrganizationID == "" || callerOrganizationID == "" {
		return ErrCrossTenant
	}
	if resourceOrganizationID != callerOrganizationID {
		return ErrCrossTenant
	}
	return nil
}

// ScopeCheckWithGrants is ScopeCheck relaxed for callers explicitly holding
// the rare cross-tenant capability. Powerful roles without that capability
// still cannot cross the boundary.
func ScopeCheckWithGrants(resourceOrganizationID, callerOrganizationID string, grants PermissionSet) error {
	resourceOrganizationID = strings.TrimSpace(resourceOrganizationID)
	callerOrganizationID = strings.TrimSpace(callerOrganizationID)
	if resourceOrganizationID == "" || callerOrganizationID == "" {
		return ErrCrossTenant
	}
	if resourceOrganizationID == callerOrganizationID || grants.Has(PermissionCrossTenant) {
		return nil
	}
	return ErrCrossTenant
}
