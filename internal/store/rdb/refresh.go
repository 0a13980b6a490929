// Package rdb keeps refresh tokens in Redis so several API replicas share
// revocation state without touching PostgreSQL on every refresh.
package rdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tkfleet.io/internal/auth"
)

const keyPrefix = "tkfleet:rt:"

// revokeScript returns -1 for a missing token, 0 if it was already revoked and 1 when it revoked it.
var revokeScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	if redis.call('HEXISTS', KEYS[1], 'revoked_at') == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1])
	return 1
`)

// RefreshTokens implements auth.RefreshTokenStore on Redis hashes. Each token
// expires with its own TTL; an identity set indexes live token hashes.
type RefreshTokens struct {
	rdb redis.UniversalClient
}

var _ auth.RefreshTokenStore = (*RefreshTokens)(nil)

// NewRefreshTokens returns a store on rdb.
func NewRefreshTokens(rdb redis.UniversalClient) *RefreshTokens {
	return &RefreshTokens{rdb: rdb}
}

func tokenKey(hash string) string { return keyPrefix + hash }

func identityKey(identityID string) string { return keyPrefix + "identity:" + identityID }

func encodeToken(tok *auth.RefreshToken) map[string]any {
	fields := map[string]any{
		"identity_id": tok.IdentityID,
		"tenant_id":   tok.TenantID,
		"expires_at":  tok.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"created_at":  tok.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if tok.RevokedAt != nil {
		fields["revoked_at"] = tok.RevokedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func decodeToken(hash string, fields map[string]string) (*auth.RefreshToken, error) {
	if len(fields) == 0 {
		return nil, auth.ErrNotFound
	}
	tok := &auth.RefreshToken{
		TokenHash:  hash,
		IdentityID: fields["identity_id"],
		TenantID:   fields["tenant_id"],
	}
	var err error
	if tok.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("refresh token %s: expires_at: %w", hash, err)
	}
	if tok.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("refresh token %s: created_at: %w", hash, err)
	}
	if raw, ok := fields["revoked_at"]; ok && raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("refresh token %s: revoked_at: %w", hash, err)
		}
		tok.RevokedAt = &at
	}
	if tok.IdentityID == "" {
		return nil, errors.New("refresh token " + hash + ": identity missing")
	}
	return tok, nil
}

func (r *RefreshTokens) Create(ctx context.Context, tok *auth.RefreshToken) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: refresh token already expired", auth.ErrInvalidArgument)
	}
	key := tokenKey(tok.TokenHash)
	idx := identityKey(tok.IdentityID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeToken(tok))
		pipe.Expire(ctx, key, ttl)
		pipe.SAdd(ctx, idx, tok.TokenHash)
		// The index lives as long as its longest-lived token.
		pipe.ExpireNX(ctx, idx, ttl)
		pipe.ExpireGT(ctx, idx, ttl)
		return nil
	})
	return err
}

func (r *RefreshTokens) Find(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	fields, err := r.rdb.HGetAll(ctx, tokenKey(tokenHash)).Result()
	if err != nil {
		return nil, err
	}
	return decodeToken(tokenHash, fields)
}

func (r *RefreshTokens) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	res, err := revokeScript.Run(ctx, r.rdb, []string{tokenKey(tokenHash)}, at.UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return err
	}
	if res < 1 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *RefreshTokens) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error {
	idx := identityKey(identityID)
	hashes, err := r.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	stamp := at.UTC().Format(time.RFC3339Nano)
	for _, h := range hashes {
		res, err := revokeScript.Run(ctx, r.rdb, []string{tokenKey(h)}, stamp).Int()
		if err != nil {
			return err
		}
		if res == -1 {
			// expired on its own; drop it from the index
			if err := r.rdb.SRem(ctx, idx, h).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
