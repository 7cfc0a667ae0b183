package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes the two credentials the issuer mints.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"

	// TokenKindAny disables the kind check during validation.
	TokenKindAny TokenKind = ""
)

const (
	defaultIssuerName = "kompli"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultLeeway     = 5 * time.Second
)

// Claims is the signed, self-contained claim set carried by every token.
// Role ids are embedded instead of permissions so role mutations take
// effect on the next resolution, not at token expiry.
type Claims struct {
	OrganizationID string   `json:"org"`
	Kind           string   `json:"kind"`
	RoleIDs        []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// SigningKey is one HS256 key of the issuer keyring.
type SigningKey struct {
	ID     string
	Secret []byte
}

// Issuer mints and validates signed, time-bounded tokens. The first keyring
// entry signs; every entry verifies, which keeps old tokens valid during
// key rollover.
type Issuer struct {
	keys        []SigningKey
	revocations RevocationStore
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	leeway      time.Duration
	now         func() time.Time
}

// IssuerOption configures Issuer behavior.
type IssuerOption func(*Issuer) error

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) error {
		if name = strings.TrimSpace(name); name != "" {
			i.issuer = name
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
		return nil
	}
}

// WithLeeway sets the symmetric clock-skew tolerance applied to expiry
// checks across distributed validators.
func WithLeeway(d time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if d >= 0 {
			i.leeway = d
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) error {
		if fn != nil {
			i.now = fn
		}
		return nil
	}
}

// NewIssuer constructs an Issuer from a non-empty keyring and a revocation
// store consulted on every validation.
func NewIssuer(keys []SigningKey, revocations RevocationStore, opts ...IssuerOption) (*Issuer, error) {
	if len(keys) == 0 {
		return nil, errors.New("auth: at least one signing key is required")
	}
	for _, k := range keys {
		if k.ID == "" || len(k.Secret) == 0 {
			return nil, errors.New("auth: signing key id and secret are required")
		}
	}
	if revocations == nil {
		return nil, errors.New("auth: revocation store is required")
	}
	iss := &Issuer{
		keys:        keys,
		revocations: revocations,
		issuer:      defaultIssuerName,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		leeway:      defaultLeeway,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(iss); err != nil {
			return nil, err
		}
	}
	return iss, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Issue signs a token of the given kind for the subject/organization pair.
// The jti is a fresh random identifier used for revocation bookkeeping.
func (i *Issuer) Issue(subjectID, organizationID string, roleIDs []string, kind TokenKind) (string, Claims, error) {
	subjectID = strings.TrimSpace(subjectID)
	organizationID = strings.TrimSpace(organizationID)
	if subjectID == "" || organizationID == "" {
		return "", Claims{}, ErrInvalidInput
	}
	var ttl time.Duration
	switch kind {
	case TokenKindAccess:
		ttl = i.accessTTL
	case TokenKindRefresh:
		ttl = i.refreshTTL
	default:
		return "", Claims{}, ErrWrongTokenKind
	}

	now := i.now().UTC()
	claims := Claims{
		OrganizationID: organizationID,
		Kind:           string(kind),
		RoleIDs:        append([]string(nil), roleIDs...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = i.keys[0].ID
	signed, err := token.SignedString(i.keys[0].Secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Validate verifies the signature, then expiry, then consults the
// revocation store, in that order; claims are never trusted before the
// signature check passes. A non-empty want rejects other token kinds.
func (i *Issuer) Validate(ctx context.Context, raw string, want TokenKind) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrTokenMalformed
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, i.keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithLeeway(i.leeway),
		jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return Claims{}, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		default:
			return Claims{}, ErrTokenMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.OrganizationID) == "" || claims.ID == "" {
		return Claims{}, ErrTokenMalformed
	}

	revoked, err := i.revocations.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrTokenRevoked
	}

	if want != TokenKindAny && claims.Kind != string(want) {
		return Claims{}, ErrWrongTokenKind
	}
	return *claims, nil
}

// Revoke marks a token identifier as revoked. Once recorded, no subsequent
// validation of that identifier succeeds.
func (i *Issuer) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ErrInvalidInput
	}
	return i.revocations.RecordRevocation(ctx, tokenID, expiresAt)
}

func (i *Issuer) keyfunc(t *jwt.Token) (any, error) {
	if kid, ok := t.Header["kid"].(string); ok && kid != "" {
		for _, k := range i.keys {
			if k.ID == kid {
				return k.Secret, nil
			}
		}
		return nil, errors.New("auth: unknown signing key")
	}
	// No kid header: accept any keyring entry (rollover tokens minted
	// before key ids were introduced).
	set := jwt.VerificationKeySet{}
	for _, k := range i.keys {
		set.Keys = append(set.Keys, k.Secret)
	}
	return set, nil
}
