package fleet

import (
	"context"
	"time"
)

// Queryer is the storage contract. Every method on a tenant-owned entity takes
// the tenant id explicitly and implementations must include it in the query
// predicate. Rows in StatusDeleted are invisible to Get*, List* and
// VehiclesByIDs; a missing or deleted row yields ErrNotFound. Unique
// violations surface as ErrConflict.
//
// Update methods never write created_at, created_by or tenant_id.
type Queryer interface {
	InsertTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	TenantNameTaken(ctx context.Context, name, exceptID string) (bool, error)
	UpdateTenant(ctx context.Context, t *Tenant) error

	InsertIdentity(ctx context.Context, tenantID string, i *Identity) error
	GetIdentity(ctx context.Context, tenantID, id string) (Identity, error)
	GetIdentityByUsername(ctx context.Context, tenantID, username string) (Identity, error)
	ListIdentities(ctx context.Context, tenantID string) ([]Identity, error)
	UpdateIdentity(ctx context.Context, tenantID string, i *Identity) error

	InsertVehicle(ctx context.Context, tenantID string, v *Vehicle) error
	GetVehicle(ctx context.Context, tenantID, id string) (Vehicle, error)
	ListVehicles(ctx context.Context, tenantID string, f VehicleFilter) ([]Vehicle, error)
	PlateTaken(ctx context.Context, tenantID, plate, exceptID string) (bool, error)
	VehiclesByIDs(ctx context.Context, tenantID string, ids []string) ([]Vehicle, error)
	UpdateVehicle(ctx context.Context, tenantID string, v *Vehicle) error
	// UpdateVehiclePosition writes only the position fields and the update stamps.
	UpdateVehiclePosition(ctx context.Context, tenantID string, v *Vehicle) error

	// SuspendMembers moves every non-deleted identity and vehicle of the tenant to StatusSuspended.
	SuspendMembers(ctx context.Context, tenantID string, at time.Time, by string) error

	AppendLocations(ctx context.Context, tenantID string, recs []LocationRecord) error
	// LocationHistory returns up to limit records, newest first.
	LocationHistory(ctx context.Context, tenantID, vehicleID string, limit int) ([]LocationRecord, error)
}

// Store is a Queryer that can open transactions.
type Store interface {
	Queryer
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a transaction. Rollback after Commit is a no-op.
type Tx interface {
	Queryer
	Commit() error
	Rollback() error
}

// RunInTx runs fn inside a transaction, committing when fn succeeds. Any error
// rolls the transaction back and is returned unchanged.
func RunInTx(ctx context.Context, s Store, fn func(q Queryer) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
