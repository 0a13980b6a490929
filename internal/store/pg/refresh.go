package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tkfleet.io/internal/auth"
)

// RefreshTokens persists refresh token hashes in the refresh_tokens table.
type RefreshTokens struct {
	db dbtx
}

var _ auth.RefreshTokenStore = (*RefreshTokens)(nil)

// NewRefreshTokens returns a token store on db.
func NewRefreshTokens(db *sql.DB) *RefreshTokens {
	return &RefreshTokens{db: db}
}

func (r *RefreshTokens) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		insert into refresh_tokens (token_hash, identity_id, tenant_id, expires_at, created_at)
		values ($1, $2, $3, $4, $5)
	`, tok.TokenHash, tok.IdentityID, tok.TenantID, tok.ExpiresAt, tok.CreatedAt)
	return err
}

func (r *RefreshTokens) Find(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var (
		tok     auth.RefreshToken
		revoked sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		select token_hash, identity_id, tenant_id, expires_at, created_at, revoked_at
		from refresh_tokens where token_hash = $1
	`, tokenHash).Scan(&tok.TokenHash, &tok.IdentityID, &tok.TenantID, &tok.ExpiresAt, &tok.CreatedAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tok.RevokedAt = timePtr(revoked)
	return &tok, nil
}

// Revoke marks a live token revoked. Concurrent refreshes race on the
// revoked_at predicate so only one of them wins.
func (r *RefreshTokens) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2
		where token_hash = $1 and revoked_at is null
	`, tokenHash, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *RefreshTokens) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2
		where identity_id = $1 and revoked_at is null
	`, identityID, at)
	return err
}

// PurgeExpired deletes tokens that expired before cutoff and reports how many were removed.
func (r *RefreshTokens) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from refresh_tokens where expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
