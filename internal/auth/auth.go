package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 60 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	refreshTokenBytes = 32
)

// Claims is the access token payload: sub, role and tenantId plus the registered timestamps.
type Claims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenantId"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into a request principal.
func (c *Claims) Principal() (Principal, error) {
	if strings.TrimSpace(c.Subject) == "" {
		return Principal{}, ErrInvalidToken
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{IdentityID: c.Subject, TenantID: c.TenantID, Role: role}, nil
}

// Subject is what an access token is minted for.
type Subject struct {
	IdentityID string
	TenantID   string
	Role       Role
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Issuer signs HS256 access tokens and manages opaque refresh tokens.
type Issuer struct {
	secret     []byte
	store      RefreshTokenStore
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// IssuerOption configures Issuer behavior.
type IssuerOption func(*Issuer) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl <= 0 {
			return errors.New("auth: access ttl must be positive")
		}
		i.accessTTL = ttl
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl <= 0 {
			return errors.New("auth: refresh ttl must be positive")
		}
		i.refreshTTL = ttl
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) error {
		if fn != nil {
			i.now = fn
		}
		return nil
	}
}

// NewIssuer constructs an Issuer signing with secret and persisting refresh tokens in store.
func NewIssuer(secret []byte, store RefreshTokenStore, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if store == nil {
		return nil, errors.New("auth: refresh token store is required")
	}
	iss := &Issuer{
		secret:     append([]byte(nil), secret...),
		store:      store,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(iss); err != nil {
			return nil, err
		}
	}
	return iss, nil
}

// Issue mints a fresh access token and a persisted refresh token for sub.
func (i *Issuer) Issue(ctx context.Context, sub Subject) (TokenPair, error) {
	if strings.TrimSpace(sub.IdentityID) == "" {
		return TokenPair{}, fmt.Errorf("%w: identity id is required", ErrInvalidArgument)
	}
	if !sub.Role.Valid() {
		return TokenPair{}, fmt.Errorf("%w: unknown role", ErrInvalidArgument)
	}
	now := i.now().UTC()
	access, accessExp, err := i.signAccessToken(sub, now)
	if err != nil {
		return TokenPair{}, err
	}
	raw, err := newRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	rec := &RefreshToken{
		TokenHash:  hashRefreshToken(raw),
		IdentityID: sub.IdentityID,
		TenantID:   sub.TenantID,
		ExpiresAt:  now.Add(i.refreshTTL),
		CreatedAt:  now,
	}
	if err := i.store.Create(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

func (i *Issuer) signAccessToken(sub Subject, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.accessTTL)
	claims := Claims{
		Role:     sub.Role.String(),
		TenantID: sub.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.IdentityID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate verifies signature, algorithm and expiry of an access token.
func (i *Issuer) Validate(token string) (*Claims, error) {
	return i.parse(token, jwt.WithExpirationRequired())
}

// ValidateExpired verifies signature and algorithm but ignores expiry. It is
// only meant for the refresh flow.
func (i *Issuer) ValidateExpired(token string) (*Claims, error) {
	return i.parse(token, jwt.WithoutClaimsValidation())
}

func (i *Issuer) parse(token string, extra ...jwt.ParserOption) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}, extra...)
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.Principal(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh exchanges an expired access token plus its refresh token for a new
// pair carrying the same claims.
func (i *Issuer) Refresh(ctx context.Context, accessToken, refreshToken string) (TokenPair, error) {
	claims, err := i.ValidateExpired(accessToken)
	if err != nil {
		return TokenPair{}, err
	}
	p, err := claims.Principal()
	if err != nil {
		return TokenPair{}, err
	}
	return i.Rotate(ctx, Subject{IdentityID: p.IdentityID, TenantID: p.TenantID, Role: p.Role}, refreshToken)
}

// Rotate consumes refreshToken and issues a new pair for sub. The token must be
// live and bound to sub. Presenting a token that was already revoked revokes
// every token of the identity, since it means the token leaked.
func (i *Issuer) Rotate(ctx context.Context, sub Subject, refreshToken string) (TokenPair, error) {
	rec, err := i.lookup(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	now := i.now().UTC()
	if rec.IdentityID != sub.IdentityID || rec.TenantID != sub.TenantID {
		return TokenPair{}, ErrInvalidToken
	}
	if rec.Revoked() {
		if err := i.store.RevokeAllForIdentity(ctx, rec.IdentityID, now); err != nil {
			return TokenPair{}, fmt.Errorf("revoke identity tokens: %w", err)
		}
		return TokenPair{}, ErrInvalidToken
	}
	if !now.Before(rec.ExpiresAt) {
		return TokenPair{}, ErrInvalidToken
	}
	if err := i.store.Revoke(ctx, rec.TokenHash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	return i.Issue(ctx, sub)
}

// Revoke marks refreshToken unusable. Only the owning identity may revoke it.
func (i *Issuer) Revoke(ctx context.Context, identityID, refreshToken string) error {
	rec, err := i.lookup(ctx, refreshToken)
	if err != nil {
		return err
	}
	if rec.IdentityID != identityID {
		return ErrInvalidToken
	}
	if rec.Revoked() {
		return nil
	}
	if err := i.store.Revoke(ctx, rec.TokenHash, i.now().UTC()); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// RevokeAll revokes every refresh token of the identity.
func (i *Issuer) RevokeAll(ctx context.Context, identityID string) error {
	return i.store.RevokeAllForIdentity(ctx, identityID, i.now().UTC())
}

func (i *Issuer) lookup(ctx context.Context, refreshToken string) (*RefreshToken, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}
	rec, err := i.store.Find(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return rec, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
