package rdb

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"tkfleet.io/internal/auth"
)

func TestKeys(t *testing.T) {
	if got := tokenKey("abc"); got != "tkfleet:rt:abc" {
		t.Fatalf("unexpected token key %q", got)
	}
	if got := identityKey("u1"); got != "tkfleet:rt:identity:u1" {
		t.Fatalf("unexpected identity key %q", got)
	}
}

func stringify(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func TestEncodeDecode(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 123, time.UTC)
	tok := &auth.RefreshToken{
		TokenHash:  "h1",
		IdentityID: "u1",
		TenantID:   "t1",
		CreatedAt:  created,
		ExpiresAt:  created.Add(7 * 24 * time.Hour),
	}

	got, err := decodeToken("h1", stringify(encodeToken(tok)))
	if err != nil {
		t.Fatalf("decodeToken: %v", err)
	}
	if got.IdentityID != "u1" || got.TenantID != "t1" || !got.ExpiresAt.Equal(tok.ExpiresAt) || got.Revoked() {
		t.Fatalf("unexpected token %+v", got)
	}

	revoked := created.Add(time.Hour)
	tok.RevokedAt = &revoked
	got, err = decodeToken("h1", stringify(encodeToken(tok)))
	if err != nil {
		t.Fatalf("decodeToken: %v", err)
	}
	if !got.Revoked() || !got.RevokedAt.Equal(revoked) {
		t.Fatalf("expected revoked token, got %+v", got)
	}
}

func TestDecodeMissing(t *testing.T) {
	if _, err := decodeToken("h1", map[string]string{}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := decodeToken("h1", map[string]string{"identity_id": "u1", "expires_at": "bad"}); err == nil {
		t.Fatal("expected parse error")
	}
}
