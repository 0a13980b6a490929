package memory

import (
	"context"
	"sync"
	"time"

	"tkfleet.io/internal/auth"
)

// RefreshTokens is an in-process auth.RefreshTokenStore.
type RefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]auth.RefreshToken
}

var _ auth.RefreshTokenStore = (*RefreshTokens)(nil)

func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{tokens: map[string]auth.RefreshToken{}}
}

func (r *RefreshTokens) Create(ctx context.Context, tok *auth.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tok.TokenHash] = *tok
	return nil
}

func (r *RefreshTokens) Find(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &tok, nil
}

func (r *RefreshTokens) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[tokenHash]
	if !ok || tok.RevokedAt != nil {
		return auth.ErrNotFound
	}
	tok.RevokedAt = &at
	r.tokens[tokenHash] = tok
	return nil
}

func (r *RefreshTokens) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, tok := range r.tokens {
		if tok.IdentityID == identityID && tok.RevokedAt == nil {
			tok.RevokedAt = &at
			r.tokens[hash] = tok
		}
	}
	return nil
}
