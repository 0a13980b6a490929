package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/ids"
)

const maxNameLen = 100

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(name) > maxNameLen {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, maxNameLen)
	}
	return name, nil
}

func superUser(ctx context.Context) (auth.Principal, error) {
	p, err := auth.MustPrincipal(ctx)
	if err != nil {
		return auth.Principal{}, err
	}
	if err := auth.RequireSuperUser(p); err != nil {
		return auth.Principal{}, err
	}
	return p, nil
}

// CreateTenant registers a new tenant. SuperUser only.
func (s *Service) CreateTenant(ctx context.Context, name string) (Tenant, error) {
	p, err := superUser(ctx)
	if err != nil {
		return Tenant{}, err
	}
	name, err = normalizeName(name)
	if err != nil {
		return Tenant{}, err
	}
	now := s.now().UTC()
	t := Tenant{
		ID:     ids.New(),
		Name:   name,
		Status: StatusActive,
		Audit:  Audit{CreatedAt: now, CreatedBy: p.IdentityID, UpdatedAt: now, UpdatedBy: p.IdentityID},
	}
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		taken, err := q.TenantNameTaken(ctx, name, "")
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: tenant name %q already in use", ErrConflict, name)
		}
		return q.InsertTenant(ctx, &t)
	})
	if err != nil {
		return Tenant{}, err
	}
	s.audit(ctx, "tenant.create", map[string]any{"tenant_id": t.ID, "name": t.Name})
	return t, nil
}

// GetTenant returns a non-deleted tenant. SuperUser only.
func (s *Service) GetTenant(ctx context.Context, id string) (Tenant, error) {
	if _, err := superUser(ctx); err != nil {
		return Tenant{}, err
	}
	return s.store.GetTenant(ctx, id)
}

// ListTenants returns every non-deleted tenant. SuperUser only.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	if _, err := superUser(ctx); err != nil {
		return nil, err
	}
	return s.store.ListTenants(ctx)
}

// RenameTenant changes the tenant name keeping it unique. SuperUser only.
func (s *Service) RenameTenant(ctx context.Context, id, name string) (Tenant, error) {
	p, err := superUser(ctx)
	if err != nil {
		return Tenant{}, err
	}
	name, err = normalizeName(name)
	if err != nil {
		return Tenant{}, err
	}
	var out Tenant
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		t, err := q.GetTenant(ctx, id)
		if err != nil {
			return err
		}
		taken, err := q.TenantNameTaken(ctx, name, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: tenant name %q already in use", ErrConflict, name)
		}
		t.Name = name
		t.UpdatedAt = s.now().UTC()
		t.UpdatedBy = p.IdentityID
		if err := q.UpdateTenant(ctx, &t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}
	s.audit(ctx, "tenant.update", map[string]any{"tenant_id": id, "name": name})
	return out, nil
}

// SetTenantStatus suspends or reactivates a tenant. Deletion goes through DeleteTenant.
func (s *Service) SetTenantStatus(ctx context.Context, id string, status Status) (Tenant, error) {
	p, err := superUser(ctx)
	if err != nil {
		return Tenant{}, err
	}
	if status == StatusDeleted {
		return Tenant{}, fmt.Errorf("%w: use delete to remove a tenant", ErrInvalidInput)
	}
	var out Tenant
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		t, err := q.GetTenant(ctx, id)
		if err != nil {
			return err
		}
		if err := t.Status.transition(status); err != nil {
			return err
		}
		t.Status = status
		t.UpdatedAt = s.now().UTC()
		t.UpdatedBy = p.IdentityID
		if err := q.UpdateTenant(ctx, &t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}
	s.audit(ctx, "tenant.status", map[string]any{"tenant_id": id, "status": string(status)})
	return out, nil
}

// DeleteTenant soft-deletes the tenant and suspends all of its identities and
// vehicles in the same transaction. SuperUser only.
func (s *Service) DeleteTenant(ctx context.Context, id string) error {
	p, err := superUser(ctx)
	if err != nil {
		return err
	}
	if p.TenantID == id {
		return fmt.Errorf("%w: cannot delete own tenant", ErrInvalidInput)
	}
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		t, err := q.GetTenant(ctx, id)
		if err != nil {
			return err
		}
		if err := t.Status.transition(StatusDeleted); err != nil {
			return err
		}
		t.Status = StatusDeleted
		t.UpdatedAt = s.now().UTC()
		t.UpdatedBy = p.IdentityID
		if err := q.UpdateTenant(ctx, &t); err != nil {
			return err
		}
		sc, err := s.scope(q, id, p.IdentityID)
		if err != nil {
			return err
		}
		return sc.SuspendMembers(ctx)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, "tenant.delete", map[string]any{"tenant_id": id})
	return nil
}

// activeTenant fails unless the tenant exists and is active.
func activeTenant(ctx context.Context, q Queryer, id string) error {
	t, err := q.GetTenant(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.ErrUnauthorized
		}
		return err
	}
	if t.Status != StatusActive {
		return auth.ErrUnauthorized
	}
	return nil
}
