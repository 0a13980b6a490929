package fleet

import (
	"context"
	"errors"
	"strings"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/tenant"
)

var errIssuerMissing = errors.New("fleet: token issuer not configured")

// Session is the result of a successful login or refresh.
type Session struct {
	Tokens   auth.TokenPair `json:"tokens"`
	Identity Identity       `json:"identity"`
}

// Login authenticates username and password within the request tenant.
// Consecutive failures lock the identity for the configured lockout window.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	if s.issuer == nil {
		return Session{}, errIssuerMissing
	}
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return Session{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return Session{}, auth.ErrUnauthorized
	}

	var (
		ident   Identity
		outcome error
	)
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		if err := activeTenant(ctx, q, tenantID); err != nil {
			outcome = err
			return nil
		}
		sc, err := s.scope(q, tenantID, "")
		if err != nil {
			return err
		}
		ident, err = sc.GetIdentityByUsername(ctx, username)
		if errors.Is(err, ErrNotFound) {
			outcome = auth.ErrUnauthorized
			return nil
		}
		if err != nil {
			return err
		}
		sc.actor = ident.ID
		now := s.now().UTC()
		if ident.Status != StatusActive {
			outcome = auth.ErrUnauthorized
			return nil
		}
		if ident.Locked(now) {
			outcome = ErrLocked
			return nil
		}
		ok, err := auth.VerifyPassword(password, ident.Digest, ident.Salt)
		if err != nil {
			return err
		}
		if !ok {
			ident.FailedAttempts++
			outcome = auth.ErrUnauthorized
			if ident.FailedAttempts >= s.maxFailedLogins {
				until := now.Add(s.lockout)
				ident.LockedUntil = &until
				ident.FailedAttempts = 0
				outcome = ErrLocked
			}
			return sc.UpdateIdentity(ctx, &ident)
		}
		ident.FailedAttempts = 0
		ident.LockedUntil = nil
		ident.LastLoginAt = &now
		return sc.UpdateIdentity(ctx, &ident)
	})
	if err != nil {
		return Session{}, err
	}
	if outcome != nil {
		event := "auth.login.failed"
		if errors.Is(outcome, ErrLocked) {
			event = "auth.login.locked"
		}
		s.audit(ctx, event, map[string]any{"tenant_id": tenantID, "username": username})
		return Session{}, outcome
	}

	pair, err := s.issuer.Issue(ctx, auth.Subject{IdentityID: ident.ID, TenantID: tenantID, Role: ident.Role})
	if err != nil {
		return Session{}, err
	}
	s.audit(ctx, "auth.login", map[string]any{"tenant_id": tenantID, "identity_id": ident.ID})
	return Session{Tokens: pair, Identity: ident}, nil
}

// Refresh exchanges an expired access token and its refresh token for a new
// pair. The identity is reloaded so role changes and deletions take effect.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (Session, error) {
	if s.issuer == nil {
		return Session{}, errIssuerMissing
	}
	claims, err := s.issuer.ValidateExpired(accessToken)
	if err != nil {
		return Session{}, err
	}
	if claims.TenantID == "" {
		return Session{}, auth.ErrInvalidToken
	}
	if err := activeTenant(ctx, s.store, claims.TenantID); err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	ident, err := s.store.GetIdentity(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if ident.Status != StatusActive {
		return Session{}, auth.ErrInvalidToken
	}
	pair, err := s.issuer.Rotate(ctx, auth.Subject{IdentityID: ident.ID, TenantID: ident.TenantID, Role: ident.Role}, refreshToken)
	if err != nil {
		return Session{}, err
	}
	s.audit(ctx, "auth.refresh", map[string]any{"tenant_id": ident.TenantID, "identity_id": ident.ID})
	return Session{Tokens: pair, Identity: ident}, nil
}

// Revoke makes the caller's refresh token unusable.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if s.issuer == nil {
		return errIssuerMissing
	}
	p, err := auth.MustPrincipal(ctx)
	if err != nil {
		return err
	}
	if err := s.issuer.Revoke(ctx, p.IdentityID, refreshToken); err != nil {
		return err
	}
	s.audit(ctx, "auth.revoke", map[string]any{"identity_id": p.IdentityID})
	return nil
}
