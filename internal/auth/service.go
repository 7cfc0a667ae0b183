package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"kompli.org/internal/obs"
)

// Service is the facade the routing layer talks to: credential
// authentication, token lifecycle, session construction and authorization
// queries. It holds no mutable per-request state; concurrent requests share
// only the backing store.
type Service struct {
	store    Store
	issuer   *Issuer
	resolver *Resolver
}

// TokenPair carries freshly issued credentials and their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// NewService wires the store and issuer into a Service.
func NewService(store Store, issuer *Issuer) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if issuer == nil {
		return nil, errors.New("auth: issuer is required")
	}
	return &Service{
		store:    store,
		issuer:   issuer,
		resolver: NewResolver(store),
	}, nil
}

// Resolver exposes the permission resolver for callers that authorize
// repeatedly against one session.
func (s *Service) Resolver() *Resolver { return s.resolver }

// EnsureBuiltins seeds the builtin permission catalog.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions)
}

// Authenticate checks the presented secret and issues a token pair. Unknown
// user, wrong secret, deactivated user and deactivated organization are all
// reported as the same ErrInvalidCredentials; a dummy hash comparison keeps
// the unknown-user path timing-uniform with a mismatch.
func (s *Service) Authenticate(ctx context.Context, email, secret string) (TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || secret == "" {
		return TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			VerifyDummy(secret)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if err := VerifyPassword(user.PasswordHash, secret); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !user.Active {
		return TokenPair{}, ErrInvalidCredentials
	}
	org, err := s.store.Organizations(ctx).Find(ctx, user.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !org.Active {
		return TokenPair{}, ErrInvalidCredentials
	}

	roleIDs, err := s.assignedRoleIDs(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return s.mintPair(user.ID, user.OrganizationID, roleIDs)
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token's own life is not extended; any other use of a refresh
// token is rejected with ErrWrongTokenKind.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.issuer.Validate(ctx, refreshToken, TokenKindRefresh)
	if err != nil {
		rejectToken(err)
		return "", time.Time{}, err
	}

	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}
	if !user.Active {
		return "", time.Time{}, ErrInvalidCredentials
	}
	org, err := s.store.Organizations(ctx).Find(ctx, user.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}
	if !org.Active {
		return "", time.Time{}, ErrInvalidCredentials
	}

	roleIDs, err := s.assignedRoleIDs(ctx, user.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	token, access, err := s.issuer.Issue(user.ID, claims.OrganizationID, roleIDs, TokenKindAccess)
	if err != nil {
		return "", time.Time{}, err
	}
	obs.TokenIssued(string(TokenKindAccess))
	return token, access.ExpiresAt.Time, nil
}

// SessionFromToken validates a bearer access token and builds the immutable
// per-request session.
func (s *Service) SessionFromToken(ctx context.Context, raw string) (Session, error) {
	claims, err := s.issuer.Validate(ctx, raw, TokenKindAccess)
	if err != nil {
		rejectToken(err)
		return Session{}, err
	}
	return NewSession(claims), nil
}

// RevokeToken marks the presented token's identifier as revoked (logout or
// compromise response). Revoking a refresh token does not retroactively
// revoke access tokens already derived from it; those self-expire.
func (s *Service) RevokeToken(ctx context.Context, raw string) error {
	claims, err := s.issuer.Validate(ctx, raw, TokenKindAny)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil
		}
		rejectToken(err)
		return err
	}
	return s.issuer.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// Authorize answers "may this session perform the action on the resource".
// The tenant gate runs first and independently of the permission outcome:
// holding a powerful role never crosses an organization boundary unless the
// explicit cross-tenant capability is granted.
func (s *Service) Authorize(ctx context.Context, sess Session, permission, resourceOrganizationID string) error {
	grants, err := s.resolver.Resolve(ctx, sess.SubjectID, sess.OrganizationID)
	if err != nil {
		return err
	}
	if err := ScopeCheckWithGrants(resourceOrganizationID, sess.OrganizationID, grants); err != nil {
		obs.AuthzDecision("cross_tenant")
		return err
	}
	if !grants.Allows(permission) {
		obs.AuthzDecision("permission_denied")
		return ErrPermissionDenied
	}
	obs.AuthzDecision("allowed")
	return nil
}

// Permissions resolves the session's effective permission set.
func (s *Service) Permissions(ctx context.Context, sess Session) (PermissionSet, error) {
	return s.resolver.Resolve(ctx, sess.SubjectID, sess.OrganizationID)
}

func (s *Service) assignedRoleIDs(ctx context.Context, userID string) ([]string, error) {
	assignments, err := s.store.Roles(ctx).Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.RoleID)
	}
	return ids, nil
}

func (s *Service) mintPair(userID, organizationID string, roleIDs []string) (TokenPair, error) {
	access, accessClaims, err := s.issuer.Issue(userID, organizationID, roleIDs, TokenKindAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshClaims, err := s.issuer.Issue(userID, organizationID, roleIDs, TokenKindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	obs.TokenIssued(string(TokenKindAccess))
	obs.TokenIssued(string(TokenKindRefresh))
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func rejectToken(err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		obs.TokenRejected("expired")
	case errors.Is(err, ErrTokenRevoked):
		obs.TokenRejected("revoked")
	case errors.Is(err, ErrWrongTokenKind):
		obs.TokenRejected("wrong_kind")
	case errors.Is(err, ErrTokenMalformed):
		obs.TokenRejected("malformed")
	}
}
