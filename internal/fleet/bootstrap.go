package fleet

import (
	"context"
	"errors"
	"strings"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/ids"
)

// Bootstrap makes sure a root tenant with a SuperUser exists so a fresh
// deployment can be administered. It is idempotent: an existing tenant or
// username is left as is.
func (s *Service) Bootstrap(ctx context.Context, tenantName, username, password string) (Tenant, error) {
	name, err := normalizeName(tenantName)
	if err != nil {
		return Tenant{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return Tenant{}, errors.New("fleet: bootstrap username is required")
	}
	digest, salt, err := auth.HashPassword(password)
	if err != nil {
		return Tenant{}, err
	}

	var root Tenant
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		tenants, err := q.ListTenants(ctx)
		if err != nil {
			return err
		}
		for _, t := range tenants {
			if strings.EqualFold(t.Name, name) {
				root = t
				break
			}
		}
		if root.ID == "" {
			now := s.now().UTC()
			root = Tenant{
				ID:     ids.New(),
				Name:   name,
				Status: StatusActive,
				Audit:  Audit{CreatedAt: now, UpdatedAt: now},
			}
			if err := q.InsertTenant(ctx, &root); err != nil {
				return err
			}
		}
		sc, err := s.scope(q, root.ID, "")
		if err != nil {
			return err
		}
		err = insertIdentity(ctx, sc, &Identity{
			Username: username,
			Role:     auth.RoleSuperUser,
			Status:   StatusActive,
			Digest:   digest,
			Salt:     salt,
		})
		if errors.Is(err, ErrConflict) {
			return nil
		}
		return err
	})
	if err != nil {
		return Tenant{}, err
	}
	return root, nil
}
