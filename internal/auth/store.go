package auth

import (
	"context"
	"time"
)

// RefreshToken is the persisted half of an issued refresh token. The raw
// token never leaves the issuer; only its SHA-256 hash is stored.
type RefreshToken struct {
	TokenHash  string
	IdentityID string
	TenantID   string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the token was revoked.
func (t *RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// RefreshTokenStore persists refresh tokens for rotation and revocation.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// Find returns ErrNotFound for unknown hashes.
	Find(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// Revoke marks a live token revoked. It returns ErrNotFound when the token
	// does not exist or was already revoked, so concurrent rotations of the same
	// token cannot both succeed.
	Revoke(ctx context.Context, tokenHash string, at time.Time) error
	RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error
}
