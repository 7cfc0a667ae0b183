package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"kompli.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/register",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth validates the bearer token on every non-public request and
// attaches the resulting session to the context. Authorization stays with
// the individual handlers; this layer only answers "who is calling".
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		sess, err := a.auth.SessionFromToken(r.Context(), token)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithSession(r.Context(), sess)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize runs both gates for an admin operation: the caller must hold
// the permission and reach the resource's organization.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, permission, resourceOrganizationID string) (auth.Session, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Session{}, false
	}
	if err := a.auth.Authorize(r.Context(), sess, permission, resourceOrganizationID); err != nil {
		handleAuthError(w, r, err)
		return auth.Session{}, false
	}
	return sess, true
}

// authorizeResource guards id-addressed resources. A cross-tenant denial
// answers 404 like an unknown id would, so probing foreign ids reveals
// nothing about which ones exist.
func (a *API) authorizeResource(w http.ResponseWriter, r *http.Request, permission, resourceOrganizationID string) (auth.Session, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Session{}, false
	}
	if err := a.auth.Authorize(r.Context(), sess, permission, resourceOrganizationID); err != nil {
		if errors.Is(err, auth.ErrCrossTenant) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return auth.Session{}, false
		}
		handleAuthError(w, r, err)
		return auth.Session{}, false
	}
	return sess, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
