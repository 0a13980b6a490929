package memory

import (
	"context"
	"time"

	"tkfleet.io/internal/fleet"
)

func (s *Store) InsertTenant(ctx context.Context, t *fleet.Tenant) error {
	return exec(ctx, s, func(d *data) error { return d.insertTenant(t) })
}

func (s *Store) GetTenant(ctx context.Context, id string) (fleet.Tenant, error) {
	return run(ctx, s, func(d *data) (fleet.Tenant, error) { return d.getTenant(id) })
}

func (s *Store) ListTenants(ctx context.Context) ([]fleet.Tenant, error) {
	return run(ctx, s, func(d *data) ([]fleet.Tenant, error) { return d.listTenants() })
}

func (s *Store) TenantNameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	return run(ctx, s, func(d *data) (bool, error) { return d.tenantNameTaken(name, exceptID) })
}

func (s *Store) UpdateTenant(ctx context.Context, t *fleet.Tenant) error {
	return exec(ctx, s, func(d *data) error { return d.updateTenant(t) })
}

func (s *Store) InsertIdentity(ctx context.Context, tenantID string, i *fleet.Identity) error {
	return exec(ctx, s, func(d *data) error { return d.insertIdentity(tenantID, i) })
}

func (s *Store) GetIdentity(ctx context.Context, tenantID, id string) (fleet.Identity, error) {
	return run(ctx, s, func(d *data) (fleet.Identity, error) { return d.getIdentity(tenantID, id) })
}

func (s *Store) GetIdentityByUsername(ctx context.Context, tenantID, username string) (fleet.Identity, error) {
	return run(ctx, s, func(d *data) (fleet.Identity, error) { return d.getIdentityByUsername(tenantID, username) })
}

func (s *Store) ListIdentities(ctx context.Context, tenantID string) ([]fleet.Identity, error) {
	return run(ctx, s, func(d *data) ([]fleet.Identity, error) { return d.listIdentities(tenantID) })
}

func (s *Store) UpdateIdentity(ctx context.Context, tenantID string, i *fleet.Identity) error {
	return exec(ctx, s, func(d *data) error { return d.updateIdentity(tenantID, i) })
}

func (s *Store) InsertVehicle(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return exec(ctx, s, func(d *data) error { return d.insertVehicle(tenantID, v) })
}

func (s *Store) GetVehicle(ctx context.Context, tenantID, id string) (fleet.Vehicle, error) {
	return run(ctx, s, func(d *data) (fleet.Vehicle, error) { return d.getVehicle(tenantID, id) })
}

func (s *Store) ListVehicles(ctx context.Context, tenantID string, f fleet.VehicleFilter) ([]fleet.Vehicle, error) {
	return run(ctx, s, func(d *data) ([]fleet.Vehicle, error) { return d.listVehicles(tenantID, f) })
}

func (s *Store) PlateTaken(ctx context.Context, tenantID, plate, exceptID string) (bool, error) {
	return run(ctx, s, func(d *data) (bool, error) { return d.plateTaken(tenantID, plate, exceptID) })
}

func (s *Store) VehiclesByIDs(ctx context.Context, tenantID string, ids []string) ([]fleet.Vehicle, error) {
	return run(ctx, s, func(d *data) ([]fleet.Vehicle, error) { return d.vehiclesByIDs(tenantID, ids) })
}

func (s *Store) UpdateVehicle(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return exec(ctx, s, func(d *data) error { return d.updateVehicle(tenantID, v) })
}

func (s *Store) UpdateVehiclePosition(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return exec(ctx, s, func(d *data) error { return d.updateVehiclePosition(tenantID, v) })
}

func (s *Store) SuspendMembers(ctx context.Context, tenantID string, at time.Time, by string) error {
	return exec(ctx, s, func(d *data) error { return d.suspendMembers(tenantID, at, by) })
}

func (s *Store) AppendLocations(ctx context.Context, tenantID string, recs []fleet.LocationRecord) error {
	return exec(ctx, s, func(d *data) error { return d.appendLocations(tenantID, recs) })
}

func (s *Store) LocationHistory(ctx context.Context, tenantID, vehicleID string, limit int) ([]fleet.LocationRecord, error) {
	return run(ctx, s, func(d *data) ([]fleet.LocationRecord, error) { return d.locationHistory(tenantID, vehicleID, limit) })
}

func (t *Tx) InsertTenant(ctx context.Context, tn *fleet.Tenant) error {
	return execTx(ctx, t, func(d *data) error { return d.insertTenant(tn) })
}

func (t *Tx) GetTenant(ctx context.Context, id string) (fleet.Tenant, error) {
	return inTx(ctx, t, func(d *data) (fleet.Tenant, error) { return d.getTenant(id) })
}

func (t *Tx) ListTenants(ctx context.Context) ([]fleet.Tenant, error) {
	return inTx(ctx, t, func(d *data) ([]fleet.Tenant, error) { return d.listTenants() })
}

func (t *Tx) TenantNameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	return inTx(ctx, t, func(d *data) (bool, error) { return d.tenantNameTaken(name, exceptID) })
}

func (t *Tx) UpdateTenant(ctx context.Context, tn *fleet.Tenant) error {
	return execTx(ctx, t, func(d *data) error { return d.updateTenant(tn) })
}

func (t *Tx) InsertIdentity(ctx context.Context, tenantID string, i *fleet.Identity) error {
	return execTx(ctx, t, func(d *data) error { return d.insertIdentity(tenantID, i) })
}

func (t *Tx) GetIdentity(ctx context.Context, tenantID, id string) (fleet.Identity, error) {
	return inTx(ctx, t, func(d *data) (fleet.Identity, error) { return d.getIdentity(tenantID, id) })
}

func (t *Tx) GetIdentityByUsername(ctx context.Context, tenantID, username string) (fleet.Identity, error) {
	return inTx(ctx, t, func(d *data) (fleet.Identity, error) { return d.getIdentityByUsername(tenantID, username) })
}

func (t *Tx) ListIdentities(ctx context.Context, tenantID string) ([]fleet.Identity, error) {
	return inTx(ctx, t, func(d *data) ([]fleet.Identity, error) { return d.listIdentities(tenantID) })
}

func (t *Tx) UpdateIdentity(ctx context.Context, tenantID string, i *fleet.Identity) error {
	return execTx(ctx, t, func(d *data) error { return d.updateIdentity(tenantID, i) })
}

func (t *Tx) InsertVehicle(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return execTx(ctx, t, func(d *data) error { return d.insertVehicle(tenantID, v) })
}

func (t *Tx) GetVehicle(ctx context.Context, tenantID, id string) (fleet.Vehicle, error) {
	return inTx(ctx, t, func(d *data) (fleet.Vehicle, error) { return d.getVehicle(tenantID, id) })
}

func (t *Tx) ListVehicles(ctx context.Context, tenantID string, f fleet.VehicleFilter) ([]fleet.Vehicle, error) {
	return inTx(ctx, t, func(d *data) ([]fleet.Vehicle, error) { return d.listVehicles(tenantID, f) })
}

func (t *Tx) PlateTaken(ctx context.Context, tenantID, plate, exceptID string) (bool, error) {
	return inTx(ctx, t, func(d *data) (bool, error) { return d.plateTaken(tenantID, plate, exceptID) })
}

func (t *Tx) VehiclesByIDs(ctx context.Context, tenantID string, ids []string) ([]fleet.Vehicle, error) {
	return inTx(ctx, t, func(d *data) ([]fleet.Vehicle, error) { return d.vehiclesByIDs(tenantID, ids) })
}

func (t *Tx) UpdateVehicle(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return execTx(ctx, t, func(d *data) error { return d.updateVehicle(tenantID, v) })
}

func (t *Tx) UpdateVehiclePosition(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return execTx(ctx, t, func(d *data) error { return d.updateVehiclePosition(tenantID, v) })
}

func (t *Tx) SuspendMembers(ctx context.Context, tenantID string, at time.Time, by string) error {
	return execTx(ctx, t, func(d *data) error { return d.suspendMembers(tenantID, at, by) })
}

func (t *Tx) AppendLocations(ctx context.Context, tenantID string, recs []fleet.LocationRecord) error {
	return execTx(ctx, t, func(d *data) error { return d.appendLocations(tenantID, recs) })
}

func (t *Tx) LocationHistory(ctx context.Context, tenantID, vehicleID string, limit int) ([]fleet.LocationRecord, error) {
	return inTx(ctx, t, func(d *data) ([]fleet.LocationRecord, error) { return d.locationHistory(tenantID, vehicleID, limit) })
}
