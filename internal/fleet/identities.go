package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/obs"
)

// NewIdentity is the input for CreateIdentity.
type NewIdentity struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Role      auth.Role
}

// IdentityPatch updates profile fields. Nil fields are left untouched.
type IdentityPatch struct {
	Email     *string
	FirstName *string
	LastName  *string
}

const maxUsernameLen = 64

// CreateIdentity adds an identity to the request tenant. Admin or higher, and
// nobody may create an identity above their own role.
func (s *Service) CreateIdentity(ctx context.Context, in NewIdentity) (Identity, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Identity{}, err
	}
	if in.Role == 0 {
		in.Role = auth.RoleUser
	}
	if err := auth.CanGrant(p, in.Role); err != nil {
		return Identity{}, err
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > maxUsernameLen {
		return Identity{}, fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLen)
	}
	digest, salt, err := auth.HashPassword(in.Password)
	if err != nil {
		return Identity{}, err
	}
	ident := Identity{
		Username:  username,
		Email:     strings.TrimSpace(in.Email),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      in.Role,
		Status:    StatusActive,
		Digest:    digest,
		Salt:      salt,
	}
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		sc, err := s.scope(q, tenantID, p.IdentityID)
		if err != nil {
			return err
		}
		return insertIdentity(ctx, sc, &ident)
	})
	if err != nil {
		return Identity{}, err
	}
	s.audit(ctx, "identity.create", map[string]any{"identity_id": ident.ID, "role": ident.Role.String()})
	return ident, nil
}

func insertIdentity(ctx context.Context, sc *Scope, ident *Identity) error {
	_, err := sc.GetIdentityByUsername(ctx, ident.Username)
	switch {
	case err == nil:
		return fmt.Errorf("%w: username %q already in use", ErrConflict, ident.Username)
	case !errors.Is(err, ErrNotFound):
		return err
	}
	return sc.InsertIdentity(ctx, ident)
}

// GetIdentity returns an identity of the request tenant. Admins see anyone, others only themselves.
func (s *Service) GetIdentity(ctx context.Context, id string) (Identity, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Identity{}, err
	}
	if err := auth.Authorize(p, id); err != nil {
		return Identity{}, err
	}
	return s.store.GetIdentity(ctx, tenantID, id)
}

// ListIdentities returns every non-deleted identity of the request tenant. Admin or higher.
func (s *Service) ListIdentities(ctx context.Context) ([]Identity, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireRole(p, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListIdentities(ctx, tenantID)
}

// UpdateIdentity changes profile fields. Admins may edit anyone, others only themselves.
func (s *Service) UpdateIdentity(ctx context.Context, id string, patch IdentityPatch) (Identity, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Identity{}, err
	}
	if err := auth.Authorize(p, id); err != nil {
		return Identity{}, err
	}
	out, err := s.mutateIdentity(ctx, tenantID, p.IdentityID, id, func(ident *Identity) error {
		if patch.Email != nil {
			ident.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.FirstName != nil {
			ident.FirstName = strings.TrimSpace(*patch.FirstName)
		}
		if patch.LastName != nil {
			ident.LastName = strings.TrimSpace(*patch.LastName)
		}
		return nil
	})
	if err != nil {
		return Identity{}, err
	}
	s.audit(ctx, "identity.update", map[string]any{"identity_id": id})
	return out, nil
}

// DeleteIdentity soft-deletes an identity and revokes its refresh tokens.
// Admin or higher; a caller can never delete themselves this way.
func (s *Service) DeleteIdentity(ctx context.Context, id string) error {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if err := auth.RequireRole(p, auth.RoleAdmin); err != nil {
		return err
	}
	if err := auth.GuardSelfDelete(p, id); err != nil {
		return err
	}
	_, err = s.mutateIdentity(ctx, tenantID, p.IdentityID, id, func(ident *Identity) error {
		if ident.Role > p.Role {
			return fmt.Errorf("%w: cannot delete a higher role", auth.ErrForbidden)
		}
		if err := ident.Status.transition(StatusDeleted); err != nil {
			return err
		}
		ident.Status = StatusDeleted
		return nil
	})
	if err != nil {
		return err
	}
	s.revokeSessions(ctx, id)
	s.audit(ctx, "identity.delete", map[string]any{"identity_id": id})
	return nil
}

// AssignRole sets the identity's role. Admin or higher, never above the caller's own role.
func (s *Service) AssignRole(ctx context.Context, id string, role auth.Role) (Identity, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Identity{}, err
	}
	if err := auth.CanGrant(p, role); err != nil {
		return Identity{}, err
	}
	out, err := s.mutateIdentity(ctx, tenantID, p.IdentityID, id, func(ident *Identity) error {
		if ident.Role > p.Role {
			return fmt.Errorf("%w: cannot change a higher role", auth.ErrForbidden)
		}
		ident.Role = role
		return nil
	})
	if err != nil {
		return Identity{}, err
	}
	s.audit(ctx, "identity.role.assign", map[string]any{"identity_id": id, "role": role.String()})
	return out, nil
}

// RemoveRole takes role away from the identity, leaving it an Observer.
func (s *Service) RemoveRole(ctx context.Context, id string, role auth.Role) (Identity, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Identity{}, err
	}
	if err := auth.CanGrant(p, role); err != nil {
		return Identity{}, err
	}
	out, err := s.mutateIdentity(ctx, tenantID, p.IdentityID, id, func(ident *Identity) error {
		if ident.Role != role {
			return fmt.Errorf("%w: identity does not hold role %s", ErrInvalidInput, role)
		}
		ident.Role = auth.RoleObserver
		return nil
	})
	if err != nil {
		return Identity{}, err
	}
	s.audit(ctx, "identity.role.remove", map[string]any{"identity_id": id, "role": role.String()})
	return out, nil
}

// ChangePassword replaces the caller's own password after verifying the
// current one, and revokes every refresh token they hold.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	p, err := auth.MustPrincipal(ctx)
	if err != nil {
		return err
	}
	digest, salt, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	_, err = s.mutateIdentity(ctx, p.TenantID, p.IdentityID, p.IdentityID, func(ident *Identity) error {
		ok, err := auth.VerifyPassword(current, ident.Digest, ident.Salt)
		if err != nil {
			return err
		}
		if !ok {
			return auth.ErrUnauthorized
		}
		ident.Digest = digest
		ident.Salt = salt
		ident.FailedAttempts = 0
		ident.LockedUntil = nil
		return nil
	})
	if err != nil {
		return err
	}
	s.revokeSessions(ctx, p.IdentityID)
	s.audit(ctx, "identity.password.change", map[string]any{"identity_id": p.IdentityID})
	return nil
}

// revokeSessions drops the identity's refresh tokens after its row change has
// committed. The token store is separate from the fleet store, so a failure
// here cannot undo that change; it is logged and the caller still succeeds.
func (s *Service) revokeSessions(ctx context.Context, identityID string) {
	if s.issuer == nil {
		return
	}
	if err := s.issuer.RevokeAll(ctx, identityID); err != nil {
		obs.Error("refresh_revoke_failed", err, map[string]any{"identity_id": identityID})
	}
}

func (s *Service) mutateIdentity(ctx context.Context, tenantID, actor, id string, fn func(*Identity) error) (Identity, error) {
	var out Identity
	err := RunInTx(ctx, s.store, func(q Queryer) error {
		sc, err := s.scope(q, tenantID, actor)
		if err != nil {
			return err
		}
		ident, err := sc.GetIdentity(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&ident); err != nil {
			return err
		}
		if err := sc.UpdateIdentity(ctx, &ident); err != nil {
			return err
		}
		out = ident
		return nil
	})
	return out, err
}
