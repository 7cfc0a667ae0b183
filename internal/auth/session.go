package auth

// Session is the immutable per-request identity context built from a
// validated token. It is never constructed from unvalidated input; callers
// treat it as read-only.
type Session struct {
	SubjectID      string    `json:"subject_id"`
	OrganizationID string    `json:"organization_id"`
	RoleIDs        []string  `json:"role_ids,omitempty"`
	TokenKind      TokenKind `json:"token_kind"`
	TokenID        string    `json:"-"`
}

// NewSession builds a Session from verified claims. The role id slice is
// copied so later claim reuse cannot mutate the session.
func NewSession(claims Claims) Session {
	return Session{
		SubjectID:      claims.Subject,
		OrganizationID: claims.OrganizationID,
		RoleIDs:        append([]string(nil), claims.RoleIDs...),
		TokenKind:      TokenKind(claims.Kind),
		TokenID:        claims.ID,
	}
}
