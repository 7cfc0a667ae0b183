package auth

// Permission codes used across the platform. PermissionAll is an ordinary
// catalog entry held by the global admin role; it is never special-cased
// against user identity.
const (
	PermissionAll         = "*"
	PermissionCrossTenant = "tenant:cross"

	PermissionDocumentRead  = "doc:read"
	PermissionDocumentWrite = "doc:write"

	PermissionManageOrganizations = "org:manage"
	PermissionManageUsers         = "user:manage"
	PermissionManageRoles         = "role:manage"
	PermissionManagePermissions   = "permission:manage"
)

// BuiltinPermissions is the seed catalog ensured at startup.
var BuiltinPermissions = []Permission{
	{Code: PermissionAll, Description: "All capabilities (admin wildcard)"},
	{Code: PermissionCrossTenant, Description: "Act on resources of other organizations"},
	{Code: PermissionDocumentRead, Description: "Read compliance documents"},
	{Code: PermissionDocumentWrite, Description: "Create and update compliance documents"},
	{Code: PermissionManageOrganizations, Description: "Manage organizations"},
	{Code: PermissionManageUsers, Description: "Manage users and role assignments"},
	{Code: PermissionManageRoles, Description: "Manage roles"},
	{Code: PermissionManagePermissions, Description: "Manage role permission sets"},
}
