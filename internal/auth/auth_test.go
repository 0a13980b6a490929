package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{tokens: map[string]*RefreshToken{}}
}

func (s *fakeRefreshStore) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.tokens[tok.TokenHash] = &cp
	return nil
}

func (s *fakeRefreshStore) Find(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *fakeRefreshStore) Revoke(_ context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[hash]
	if !ok || tok.RevokedAt != nil {
		return ErrNotFound
	}
	tok.RevokedAt = &at
	return nil
}

func (s *fakeRefreshStore) RevokeAllForIdentity(_ context.Context, identityID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.IdentityID == identityID && tok.RevokedAt == nil {
			tok.RevokedAt = &at
		}
	}
	return nil
}

func (s *fakeRefreshStore) live(identityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tok := range s.tokens {
		if tok.IdentityID == identityID && tok.RevokedAt == nil {
			n++
		}
	}
	return n
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestIssuer(t *testing.T) (*Issuer, *fakeRefreshStore, *testClock) {
	t.Helper()
	store := newFakeRefreshStore()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	iss, err := NewIssuer(testSecret, store,
		WithAccessTTL(15*time.Minute),
		WithRefreshTTL(24*time.Hour),
		WithClock(clock.now))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss, store, clock
}

var alice = Subject{IdentityID: "id-alice", TenantID: "tenant-1", Role: RoleUser}

func TestIssueAndValidate(t *testing.T) {
	iss, store, _ := newTestIssuer(t)
	pair, err := iss.Issue(context.Background(), alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Validate(pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "id-alice" || claims.Role != "User" || claims.TenantID != "tenant-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
	raw, err := base64.StdEncoding.DecodeString(pair.RefreshToken)
	if err != nil || len(raw) != 32 {
		t.Fatalf("refresh token is not 32 base64 bytes: %d, %v", len(raw), err)
	}
	if store.live("id-alice") != 1 {
		t.Fatalf("expected one persisted refresh token")
	}
	p, err := claims.Principal()
	if err != nil || p.Role != RoleUser {
		t.Fatalf("Principal() = %+v, %v", p, err)
	}
}

func TestValidateRejectsExpiredButValidateExpiredAccepts(t *testing.T) {
	iss, _, clock := newTestIssuer(t)
	pair, err := iss.Issue(context.Background(), alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.advance(time.Hour)
	if _, err := iss.Validate(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate expired err = %v", err)
	}
	claims, err := iss.ValidateExpired(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateExpired: %v", err)
	}
	if claims.Subject != alice.IdentityID {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	iss, _, _ := newTestIssuer(t)
	pair, err := iss.Issue(context.Background(), alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other, err := NewIssuer([]byte("another-secret-another-secret-xx"), newFakeRefreshStore())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if _, err := other.Validate(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret err = %v", err)
	}
	if _, err := iss.Validate(pair.AccessToken + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered signature err = %v", err)
	}
	if _, err := iss.Validate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token err = %v", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	iss, store, clock := newTestIssuer(t)
	ctx := context.Background()
	first, err := iss.Issue(ctx, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.advance(20 * time.Minute)

	second, err := iss.Refresh(ctx, first.AccessToken, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == first.AccessToken {
		t.Fatal("expected a new pair")
	}
	if _, err := iss.Validate(second.AccessToken); err != nil {
		t.Fatalf("new access token invalid: %v", err)
	}
	if store.live(alice.IdentityID) != 1 {
		t.Fatalf("old refresh token should be revoked after rotation")
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	iss, store, _ := newTestIssuer(t)
	ctx := context.Background()
	first, err := iss.Issue(ctx, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := iss.Refresh(ctx, first.AccessToken, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := iss.Refresh(ctx, first.AccessToken, first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replayed refresh err = %v", err)
	}
	if store.live(alice.IdentityID) != 0 {
		t.Fatal("reuse should revoke every token of the identity")
	}
	if _, err := iss.Refresh(ctx, second.AccessToken, second.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("sibling refresh err = %v", err)
	}
}

func TestRefreshRejectsAlgorithmSubstitution(t *testing.T) {
	iss, _, clock := newTestIssuer(t)
	ctx := context.Background()
	pair, err := iss.Issue(ctx, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims := Claims{
		Role:     "SuperUser",
		TenantID: alice.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.IdentityID,
			ExpiresAt: jwt.NewNumericDate(clock.now().Add(time.Hour)),
		},
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign HS512: %v", err)
	}
	if _, err := iss.Refresh(ctx, hs512, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("HS512 refresh err = %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.ValidateExpired(none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg=none err = %v", err)
	}
}

func TestRefreshRejectsForeignOrExpiredRefreshToken(t *testing.T) {
	iss, _, clock := newTestIssuer(t)
	ctx := context.Background()
	a, err := iss.Issue(ctx, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	bob := Subject{IdentityID: "id-bob", TenantID: "tenant-1", Role: RoleAdmin}
	b, err := iss.Issue(ctx, bob)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.Refresh(ctx, a.AccessToken, b.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign refresh token err = %v", err)
	}
	if _, err := iss.Refresh(ctx, a.AccessToken, "bm90LWlzc3VlZA=="); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown refresh token err = %v", err)
	}
	clock.advance(25 * time.Hour)
	if _, err := iss.Refresh(ctx, a.AccessToken, a.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired refresh token err = %v", err)
	}
}

func TestRevoke(t *testing.T) {
	iss, _, _ := newTestIssuer(t)
	ctx := context.Background()
	pair, err := iss.Issue(ctx, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := iss.Revoke(ctx, "id-mallory", pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoke by stranger err = %v", err)
	}
	if err := iss.Revoke(ctx, alice.IdentityID, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := iss.Revoke(ctx, alice.IdentityID, pair.RefreshToken); err != nil {
		t.Fatalf("second Revoke should be a no-op: %v", err)
	}
	if _, err := iss.Refresh(ctx, pair.AccessToken, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after revoke err = %v", err)
	}
}

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer(nil, newFakeRefreshStore()); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewIssuer(testSecret, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewIssuer(testSecret, newFakeRefreshStore(), WithAccessTTL(0)); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
