package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/ids"
	"tkfleet.io/internal/tenant"
)

// Scope binds a Queryer to one tenant and one acting identity. It injects the
// tenant id into every tenant-owned call and stamps audit fields on writes.
// Callers cannot move a row into another tenant through a Scope.
type Scope struct {
	q        Queryer
	tenantID string
	actor    string
	now      func() time.Time
}

// NewScope returns a Scope for tenantID. actor may be empty for system writes.
func NewScope(q Queryer, tenantID, actor string, now func() time.Time) (*Scope, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, tenant.ErrTenantRequired
	}
	if now == nil {
		now = time.Now
	}
	return &Scope{q: q, tenantID: tenantID, actor: actor, now: now}, nil
}

// TenantID returns the bound tenant.
func (s *Scope) TenantID() string { return s.tenantID }

func (s *Scope) stampInsert(a *Audit, rowTenant *string) error {
	if *rowTenant != "" && *rowTenant != s.tenantID {
		return fmt.Errorf("%w: row belongs to another tenant", auth.ErrForbidden)
	}
	now := s.now().UTC()
	*rowTenant = s.tenantID
	a.CreatedAt = now
	a.CreatedBy = s.actor
	a.UpdatedAt = now
	a.UpdatedBy = s.actor
	return nil
}

func (s *Scope) stampUpdate(a *Audit, rowTenant string) error {
	if rowTenant != s.tenantID {
		return fmt.Errorf("%w: row belongs to another tenant", auth.ErrForbidden)
	}
	a.UpdatedAt = s.now().UTC()
	a.UpdatedBy = s.actor
	return nil
}

func (s *Scope) InsertIdentity(ctx context.Context, i *Identity) error {
	if err := s.stampInsert(&i.Audit, &i.TenantID); err != nil {
		return err
	}
	if i.ID == "" {
		i.ID = ids.New()
	}
	return s.q.InsertIdentity(ctx, s.tenantID, i)
}

func (s *Scope) GetIdentity(ctx context.Context, id string) (Identity, error) {
	return s.q.GetIdentity(ctx, s.tenantID, id)
}

func (s *Scope) GetIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	return s.q.GetIdentityByUsername(ctx, s.tenantID, username)
}

func (s *Scope) ListIdentities(ctx context.Context) ([]Identity, error) {
	return s.q.ListIdentities(ctx, s.tenantID)
}

func (s *Scope) UpdateIdentity(ctx context.Context, i *Identity) error {
	if err := s.stampUpdate(&i.Audit, i.TenantID); err != nil {
		return err
	}
	return s.q.UpdateIdentity(ctx, s.tenantID, i)
}

func (s *Scope) InsertVehicle(ctx context.Context, v *Vehicle) error {
	if err := s.stampInsert(&v.Audit, &v.TenantID); err != nil {
		return err
	}
	if v.ID == "" {
		v.ID = ids.New()
	}
	return s.q.InsertVehicle(ctx, s.tenantID, v)
}

func (s *Scope) GetVehicle(ctx context.Context, id string) (Vehicle, error) {
	return s.q.GetVehicle(ctx, s.tenantID, id)
}

func (s *Scope) ListVehicles(ctx context.Context, f VehicleFilter) ([]Vehicle, error) {
	return s.q.ListVehicles(ctx, s.tenantID, f)
}

func (s *Scope) PlateTaken(ctx context.Context, plate, exceptID string) (bool, error) {
	return s.q.PlateTaken(ctx, s.tenantID, plate, exceptID)
}

func (s *Scope) VehiclesByIDs(ctx context.Context, vehicleIDs []string) ([]Vehicle, error) {
	return s.q.VehiclesByIDs(ctx, s.tenantID, vehicleIDs)
}

func (s *Scope) UpdateVehicle(ctx context.Context, v *Vehicle) error {
	if err := s.stampUpdate(&v.Audit, v.TenantID); err != nil {
		return err
	}
	return s.q.UpdateVehicle(ctx, s.tenantID, v)
}

// UpdateVehiclePosition stamps at as the update instant so a batch shares one timestamp.
func (s *Scope) UpdateVehiclePosition(ctx context.Context, v *Vehicle, at time.Time) error {
	if v.TenantID != s.tenantID {
		return fmt.Errorf("%w: row belongs to another tenant", auth.ErrForbidden)
	}
	at = at.UTC()
	v.LastUpdateAt = &at
	v.UpdatedAt = at
	v.UpdatedBy = s.actor
	return s.q.UpdateVehiclePosition(ctx, s.tenantID, v)
}

func (s *Scope) SuspendMembers(ctx context.Context) error {
	return s.q.SuspendMembers(ctx, s.tenantID, s.now().UTC(), s.actor)
}

// AppendLocations assigns ids and the tenant to recs before writing them.
func (s *Scope) AppendLocations(ctx context.Context, recs []LocationRecord) error {
	for i := range recs {
		if recs[i].TenantID != "" && recs[i].TenantID != s.tenantID {
			return fmt.Errorf("%w: row belongs to another tenant", auth.ErrForbidden)
		}
		recs[i].TenantID = s.tenantID
		if recs[i].ID == "" {
			recs[i].ID = ids.New()
		}
		recs[i].CreatedBy = s.actor
	}
	return s.q.AppendLocations(ctx, s.tenantID, recs)
}

func (s *Scope) LocationHistory(ctx context.Context, vehicleID string, limit int) ([]LocationRecord, error) {
	return s.q.LocationHistory(ctx, s.tenantID, vehicleID, limit)
}
