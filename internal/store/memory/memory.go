// Package memory is an in-process implementation of the fleet store, used in
// development mode and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"tkfleet.io/internal/fleet"
)

// Store keeps all rows in maps guarded by a single-writer semaphore. A
// transaction holds the semaphore until it commits or rolls back and works on
// a copy of the data, so a rollback simply drops the copy.
type Store struct {
	sem  chan struct{}
	data *data
}

var (
	_ fleet.Store = (*Store)(nil)
	_ fleet.Tx    = (*Tx)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		data: &data{
			tenants:    map[string]fleet.Tenant{},
			identities: map[string]fleet.Identity{},
			vehicles:   map[string]fleet.Vehicle{},
		},
	}
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() { <-s.sem }

// Begin opens a transaction. It blocks while another transaction is open.
func (s *Store) Begin(ctx context.Context) (fleet.Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{store: s, ctx: ctx, d: s.data.clone()}, nil
}

// Tx is a Store transaction.
type Tx struct {
	store *Store
	ctx   context.Context
	d     *data
	done  bool
}

func (t *Tx) Commit() error {
	if t.done {
		return errors.New("memory: transaction already finished")
	}
	t.done = true
	defer t.store.release()
	if err := t.ctx.Err(); err != nil {
		return err
	}
	t.store.data = t.d
	return nil
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.release()
	return nil
}

func (t *Tx) check(ctx context.Context) error {
	if t.done {
		return errors.New("memory: transaction already finished")
	}
	return ctx.Err()
}

// run executes fn directly against the live data for single-statement calls outside a transaction.
func run[T any](ctx context.Context, s *Store, fn func(*data) (T, error)) (T, error) {
	var zero T
	if err := s.acquire(ctx); err != nil {
		return zero, err
	}
	defer s.release()
	return fn(s.data)
}

func exec(ctx context.Context, s *Store, fn func(*data) error) error {
	_, err := run(ctx, s, func(d *data) (struct{}, error) { return struct{}{}, fn(d) })
	return err
}

func inTx[T any](ctx context.Context, t *Tx, fn func(*data) (T, error)) (T, error) {
	var zero T
	if err := t.check(ctx); err != nil {
		return zero, err
	}
	return fn(t.d)
}

func execTx(ctx context.Context, t *Tx, fn func(*data) error) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	return fn(t.d)
}

type data struct {
	tenants    map[string]fleet.Tenant
	identities map[string]fleet.Identity
	vehicles   map[string]fleet.Vehicle
	locations  []fleet.LocationRecord
}

func (d *data) clone() *data {
	cp := &data{
		tenants:    make(map[string]fleet.Tenant, len(d.tenants)),
		identities: make(map[string]fleet.Identity, len(d.identities)),
		vehicles:   make(map[string]fleet.Vehicle, len(d.vehicles)),
		// Capped so appends inside the transaction never touch the committed backing array.
		locations: d.locations[:len(d.locations):len(d.locations)],
	}
	for k, v := range d.tenants {
		cp.tenants[k] = v
	}
	for k, v := range d.identities {
		cp.identities[k] = v
	}
	for k, v := range d.vehicles {
		cp.vehicles[k] = v
	}
	return cp
}

func (d *data) insertTenant(t *fleet.Tenant) error {
	if _, ok := d.tenants[t.ID]; ok {
		return fleet.ErrConflict
	}
	if taken, _ := d.tenantNameTaken(t.Name, ""); taken {
		return fleet.ErrConflict
	}
	d.tenants[t.ID] = *t
	return nil
}

func (d *data) getTenant(id string) (fleet.Tenant, error) {
	t, ok := d.tenants[id]
	if !ok || t.Status == fleet.StatusDeleted {
		return fleet.Tenant{}, fleet.ErrNotFound
	}
	return t, nil
}

func (d *data) listTenants() ([]fleet.Tenant, error) {
	out := make([]fleet.Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		if t.Status != fleet.StatusDeleted {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *data) tenantNameTaken(name, exceptID string) (bool, error) {
	for _, t := range d.tenants {
		if t.ID != exceptID && t.Status != fleet.StatusDeleted && strings.EqualFold(t.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (d *data) updateTenant(t *fleet.Tenant) error {
	cur, ok := d.tenants[t.ID]
	if !ok {
		return fleet.ErrNotFound
	}
	cur.Name = t.Name
	cur.Status = t.Status
	cur.UpdatedAt = t.UpdatedAt
	cur.UpdatedBy = t.UpdatedBy
	d.tenants[t.ID] = cur
	return nil
}

func (d *data) insertIdentity(tenantID string, i *fleet.Identity) error {
	if _, ok := d.identities[i.ID]; ok {
		return fleet.ErrConflict
	}
	if _, err := d.getIdentityByUsername(tenantID, i.Username); err == nil {
		return fleet.ErrConflict
	}
	row := *i
	row.TenantID = tenantID
	d.identities[i.ID] = row
	return nil
}

func (d *data) getIdentity(tenantID, id string) (fleet.Identity, error) {
	i, ok := d.identities[id]
	if !ok || i.TenantID != tenantID || i.Status == fleet.StatusDeleted {
		return fleet.Identity{}, fleet.ErrNotFound
	}
	return i, nil
}

func (d *data) getIdentityByUsername(tenantID, username string) (fleet.Identity, error) {
	for _, i := range d.identities {
		if i.TenantID == tenantID && i.Status != fleet.StatusDeleted && strings.EqualFold(i.Username, username) {
			return i, nil
		}
	}
	return fleet.Identity{}, fleet.ErrNotFound
}

func (d *data) listIdentities(tenantID string) ([]fleet.Identity, error) {
	var out []fleet.Identity
	for _, i := range d.identities {
		if i.TenantID == tenantID && i.Status != fleet.StatusDeleted {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (d *data) updateIdentity(tenantID string, i *fleet.Identity) error {
	cur, err := d.getIdentity(tenantID, i.ID)
	if err != nil {
		return err
	}
	cur.Email = i.Email
	cur.FirstName = i.FirstName
	cur.LastName = i.LastName
	cur.Role = i.Role
	cur.Status = i.Status
	cur.Digest = i.Digest
	cur.Salt = i.Salt
	cur.FailedAttempts = i.FailedAttempts
	cur.LockedUntil = i.LockedUntil
	cur.LastLoginAt = i.LastLoginAt
	cur.UpdatedAt = i.UpdatedAt
	cur.UpdatedBy = i.UpdatedBy
	d.identities[i.ID] = cur
	return nil
}

func (d *data) insertVehicle(tenantID string, v *fleet.Vehicle) error {
	if _, ok := d.vehicles[v.ID]; ok {
		return fleet.ErrConflict
	}
	if taken, _ := d.plateTaken(tenantID, v.PlateNumber, ""); taken {
		return fleet.ErrConflict
	}
	row := *v
	row.TenantID = tenantID
	d.vehicles[v.ID] = row
	return nil
}

func (d *data) getVehicle(tenantID, id string) (fleet.Vehicle, error) {
	v, ok := d.vehicles[id]
	if !ok || v.TenantID != tenantID || v.Status == fleet.StatusDeleted {
		return fleet.Vehicle{}, fleet.ErrNotFound
	}
	return v, nil
}

func (d *data) listVehicles(tenantID string, f fleet.VehicleFilter) ([]fleet.Vehicle, error) {
	var out []fleet.Vehicle
	for _, v := range d.vehicles {
		if v.TenantID != tenantID || v.Status == fleet.StatusDeleted {
			continue
		}
		if f.OwnerID != "" && v.OwnerID != f.OwnerID {
			continue
		}
		if f.Type != "" && v.Type != f.Type {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (d *data) plateTaken(tenantID, plate, exceptID string) (bool, error) {
	for _, v := range d.vehicles {
		if v.ID != exceptID && v.TenantID == tenantID && v.Status != fleet.StatusDeleted && strings.EqualFold(v.PlateNumber, plate) {
			return true, nil
		}
	}
	return false, nil
}

func (d *data) vehiclesByIDs(tenantID string, vehicleIDs []string) ([]fleet.Vehicle, error) {
	seen := make(map[string]struct{}, len(vehicleIDs))
	var out []fleet.Vehicle
	for _, id := range vehicleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if v, err := d.getVehicle(tenantID, id); err == nil {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (d *data) updateVehicle(tenantID string, v *fleet.Vehicle) error {
	cur, err := d.getVehicle(tenantID, v.ID)
	if err != nil {
		return err
	}
	if v.Status != fleet.StatusDeleted && !strings.EqualFold(cur.PlateNumber, v.PlateNumber) {
		if taken, _ := d.plateTaken(tenantID, v.PlateNumber, v.ID); taken {
			return fleet.ErrConflict
		}
	}
	cur.OwnerID = v.OwnerID
	cur.PlateNumber = v.PlateNumber
	cur.Brand = v.Brand
	cur.Model = v.Model
	cur.ModelYear = v.ModelYear
	cur.Type = v.Type
	cur.Status = v.Status
	cur.UpdatedAt = v.UpdatedAt
	cur.UpdatedBy = v.UpdatedBy
	d.vehicles[v.ID] = cur
	return nil
}

func (d *data) updateVehiclePosition(tenantID string, v *fleet.Vehicle) error {
	cur, err := d.getVehicle(tenantID, v.ID)
	if err != nil {
		return err
	}
	cur.LastLatitude = v.LastLatitude
	cur.LastLongitude = v.LastLongitude
	cur.LastUpdateAt = v.LastUpdateAt
	cur.UpdatedAt = v.UpdatedAt
	cur.UpdatedBy = v.UpdatedBy
	d.vehicles[v.ID] = cur
	return nil
}

func (d *data) suspendMembers(tenantID string, at time.Time, by string) error {
	for id, i := range d.identities {
		if i.TenantID == tenantID && i.Status != fleet.StatusDeleted {
			i.Status = fleet.StatusSuspended
			i.UpdatedAt, i.UpdatedBy = at, by
			d.identities[id] = i
		}
	}
	for id, v := range d.vehicles {
		if v.TenantID == tenantID && v.Status != fleet.StatusDeleted {
			v.Status = fleet.StatusSuspended
			v.UpdatedAt, v.UpdatedBy = at, by
			d.vehicles[id] = v
		}
	}
	return nil
}

func (d *data) appendLocations(tenantID string, recs []fleet.LocationRecord) error {
	for _, rec := range recs {
		rec.TenantID = tenantID
		d.locations = append(d.locations, rec)
	}
	return nil
}

func (d *data) locationHistory(tenantID, vehicleID string, limit int) ([]fleet.LocationRecord, error) {
	var out []fleet.LocationRecord
	for i := len(d.locations) - 1; i >= 0; i-- {
		rec := d.locations[i]
		if rec.TenantID == tenantID && rec.VehicleID == vehicleID {
			out = append(out, rec)
		}
	}
	// Appends are chronological already; the stable sort only matters for back-dated inserts.
	sort.SliceStable(out, func(a, b int) bool { return out[a].RecordedAt.After(out[b].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
