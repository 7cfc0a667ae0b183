package auth

import "errors"

// Sentinel errors for the authentication and authorization core. The HTTP
// boundary collapses all of them into uniform unauthorized/forbidden
// responses; the distinctions exist for logging and metrics only.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrWrongTokenKind     = errors.New("auth: wrong token kind")
	ErrCrossTenant        = errors.New("auth: cross-tenant access denied")
	ErrPermissionDenied   = errors.New("auth: permission denied")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
