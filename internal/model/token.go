package model

import "time"

// RefreshToken models a row in the `refresh_tokens` table.  The row is the
// capability: while it exists and has not expired, the refresh token that
// embeds its ID is valid.  Deleting the row revokes the token.
//
// Fields:
//
//	ID        primary key, also the token's jti and "id" claim.
//	UserID    owner of the token.
//	ExpiresAt expiry; a row past this instant is treated as revoked.
//	User      owner, populated only by lookups that join users.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	User      *User
}

// Expired reports whether the row is past its expiry at the given instant.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// AuthPayload holds the decoded claims of a verified token.  It is attached to
// the request context by the authentication middleware and never stored.
type AuthPayload struct {
	Subject uint64
	Role    Role
	// TokenID is the refresh_tokens row id; zero for access tokens.
	TokenID uint64
}
