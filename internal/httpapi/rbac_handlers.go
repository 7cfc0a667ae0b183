package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"kompli.org/internal/auth"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type setOrganizationActiveRequest struct {
	Active bool `json:"active"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createOrganization(w, r)
	case http.MethodGet:
		a.listOrganizations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	// Creating a tenant is a platform operation; the gate runs against the
	// caller's own organization so the permission check alone decides.
	if _, ok := a.authorize(w, r, auth.PermissionManageOrganizations, sess.OrganizationID); !ok {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.auth.CreateOrganization(r.Context(), req.Name)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.organization.create", "organization", org.ID, map[string]string{
		"name": org.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if _, ok := a.authorize(w, r, auth.PermissionManageOrganizations, sess.OrganizationID); !ok {
		return
	}
	orgs, err := a.auth.ListOrganizations(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orgs})
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getOrganization(w, r, orgID)
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "users":
		a.handleOrganizationUsers(w, r, orgID)
	case "roles":
		a.handleOrganizationRoles(w, r, orgID)
	case "active":
		a.setOrganizationActive(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	if _, ok := a.authorize(w, r, auth.PermissionManageOrganizations, orgID); !ok {
		return
	}
	org, err := a.auth.FindOrganization(r.Context(), orgID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) setOrganizationActive(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.authorize(w, r, auth.PermissionManageOrganizations, orgID); !ok {
		return
	}
	var req setOrganizationActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.SetOrganizationActive(r.Context(), orgID, req.Active); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.organization.set_active", "organization", orgID, map[string]string{
		"active": fmt.Sprintf("%t", req.Active),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleOrganizationUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodPost:
		if _, ok := a.authorize(w, r, auth.PermissionManageUsers, orgID); !ok {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.CreateUser(r.Context(), orgID, req.Email, req.Password)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.create", "user", user.ID, map[string]string{
			"organization_id": orgID,
			"email":           user.Email,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		if _, ok := a.authorize(w, r, auth.PermissionManageUsers, orgID); !ok {
			return
		}
		users, err := a.auth.ListUsers(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleOrganizationRoles(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodPost:
		if _, ok := a.authorize(w, r, auth.PermissionManageRoles, orgID); !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.CreateRole(r.Context(), orgID, req.Name, req.Description, req.IsDefault)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.role.create", "role", role.ID, map[string]string{
			"organization_id": orgID,
			"name":            role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	case http.MethodGet:
		if _, ok := a.authorize(w, r, auth.PermissionManageRoles, orgID); !ok {
			return
		}
		roles, err := a.auth.ListRoles(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": roles})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	role, err := a.auth.FindRole(r.Context(), roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Global roles have no owning tenant; editing one gates against the
	// caller's own organization.
	resourceOrg := role.OrganizationID
	if role.Global() {
		resourceOrg = sess.OrganizationID
	}
	if _, ok := a.authorizeResource(w, r, auth.PermissionManagePermissions, resourceOrg); !ok {
		return
	}

	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.permissions.update", "role", roleID, map[string]string{
		"count": fmt.Sprintf("%d", len(req.Permissions)),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	user, err := a.auth.FindUser(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			if _, ok := a.authorizeResource(w, r, auth.PermissionManageUsers, user.OrganizationID); !ok {
				return
			}
			writeJSON(w, http.StatusOK, user)
		case http.MethodDelete:
			if _, ok := a.authorizeResource(w, r, auth.PermissionManageUsers, user.OrganizationID); !ok {
				return
			}
			if err := a.auth.DeactivateUser(r.Context(), userID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "rbac.user.deactivate", "user", userID, nil)
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "password":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if _, ok := a.authorizeResource(w, r, auth.PermissionManageUsers, user.OrganizationID); !ok {
			return
		}
		var req resetPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.auth.ResetPassword(r.Context(), userID, req.Password); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.password.reset", "user", userID, nil)
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "assignments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if _, ok := a.authorizeResource(w, r, auth.PermissionManageUsers, user.OrganizationID); !ok {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assignment, err := a.auth.AssignRole(r.Context(), userID, req.RoleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.assign_role", "user", userID, map[string]string{
			"role_id": assignment.RoleID,
		})
		writeJSON(w, http.StatusCreated, assignment)
	case len(parts) == 3 && parts[1] == "assignments":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if _, ok := a.authorizeResource(w, r, auth.PermissionManageUsers, user.OrganizationID); !ok {
			return
		}
		if err := a.auth.UnassignRole(r.Context(), userID, parts[2]); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.unassign_role", "user", userID, map[string]string{
			"role_id": parts[2],
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
