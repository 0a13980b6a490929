package pg

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/fleet"
)

type queries struct {
	db dbtx
}

const (
	tenantColumns   = `id, name, status, created_at, created_by, updated_at, updated_by`
	identityColumns = `id, tenant_id, username, email, first_name, last_name, role, status,
		password_digest, password_salt, failed_attempts, locked_until, last_login_at,
		created_at, created_by, updated_at, updated_by`
	vehicleColumns = `id, tenant_id, owner_id, plate_number, brand, model, model_year, type, status,
		last_latitude, last_longitude, last_update_at,
		created_at, created_by, updated_at, updated_by`
	locationColumns = `id, vehicle_id, tenant_id, latitude, longitude, address, recorded_at, created_by`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (fleet.Tenant, error) {
	var t fleet.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.CreatedBy, &t.UpdatedAt, &t.UpdatedBy)
	return t, err
}

func scanIdentity(row scanner) (fleet.Identity, error) {
	var (
		i         fleet.Identity
		role      string
		locked    sql.NullTime
		lastLogin sql.NullTime
	)
	err := row.Scan(&i.ID, &i.TenantID, &i.Username, &i.Email, &i.FirstName, &i.LastName, &role, &i.Status,
		&i.Digest, &i.Salt, &i.FailedAttempts, &locked, &lastLogin,
		&i.CreatedAt, &i.CreatedBy, &i.UpdatedAt, &i.UpdatedBy)
	if err != nil {
		return fleet.Identity{}, err
	}
	if i.Role, err = auth.ParseRole(role); err != nil {
		return fleet.Identity{}, fmt.Errorf("identity %s: %w", i.ID, err)
	}
	i.LockedUntil = timePtr(locked)
	i.LastLoginAt = timePtr(lastLogin)
	return i, nil
}

func scanVehicle(row scanner) (fleet.Vehicle, error) {
	var (
		v          fleet.Vehicle
		lastUpdate sql.NullTime
	)
	err := row.Scan(&v.ID, &v.TenantID, &v.OwnerID, &v.PlateNumber, &v.Brand, &v.Model, &v.ModelYear, &v.Type, &v.Status,
		&v.LastLatitude, &v.LastLongitude, &lastUpdate,
		&v.CreatedAt, &v.CreatedBy, &v.UpdatedAt, &v.UpdatedBy)
	if err != nil {
		return fleet.Vehicle{}, err
	}
	v.LastUpdateAt = timePtr(lastUpdate)
	return v, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (q queries) InsertTenant(ctx context.Context, t *fleet.Tenant) error {
	_, err := q.db.ExecContext(ctx, `
		insert into tenants (`+tenantColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Name, t.Status, t.CreatedAt, t.CreatedBy, t.UpdatedAt, t.UpdatedBy)
	return mapErr(err)
}

func (q queries) GetTenant(ctx context.Context, id string) (fleet.Tenant, error) {
	t, err := scanTenant(q.db.QueryRowContext(ctx, `
		select `+tenantColumns+` from tenants
		where id = $1 and status <> 'deleted'
	`, id))
	return t, mapErr(err)
}

func (q queries) ListTenants(ctx context.Context) ([]fleet.Tenant, error) {
	rows, err := q.db.QueryContext(ctx, `
		select `+tenantColumns+` from tenants
		where status <> 'deleted'
		order by id
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTenant)
}

func (q queries) TenantNameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	var taken bool
	err := q.db.QueryRowContext(ctx, `
		select exists(
			select 1 from tenants
			where lower(name) = lower($1) and id <> $2 and status <> 'deleted'
		)
	`, name, exceptID).Scan(&taken)
	return taken, err
}

func (q queries) UpdateTenant(ctx context.Context, t *fleet.Tenant) error {
	return expectOne(q.db.ExecContext(ctx, `
		update tenants
		set name = $2, status = $3, updated_at = $4, updated_by = $5
		where id = $1 and status <> 'deleted'
	`, t.ID, t.Name, t.Status, t.UpdatedAt, t.UpdatedBy))
}

func (q queries) InsertIdentity(ctx context.Context, tenantID string, i *fleet.Identity) error {
	_, err := q.db.ExecContext(ctx, `
		insert into identities (`+identityColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, i.ID, tenantID, i.Username, i.Email, i.FirstName, i.LastName, i.Role.String(), i.Status,
		i.Digest, i.Salt, i.FailedAttempts, nullTime(i.LockedUntil), nullTime(i.LastLoginAt),
		i.CreatedAt, i.CreatedBy, i.UpdatedAt, i.UpdatedBy)
	return mapErr(err)
}

func (q queries) GetIdentity(ctx context.Context, tenantID, id string) (fleet.Identity, error) {
	i, err := scanIdentity(q.db.QueryRowContext(ctx, `
		select `+identityColumns+` from identities
		where tenant_id = $1 and id = $2 and status <> 'deleted'
	`, tenantID, id))
	return i, mapErr(err)
}

func (q queries) GetIdentityByUsername(ctx context.Context, tenantID, username string) (fleet.Identity, error) {
	i, err := scanIdentity(q.db.QueryRowContext(ctx, `
		select `+identityColumns+` from identities
		where tenant_id = $1 and lower(username) = lower($2) and status <> 'deleted'
	`, tenantID, username))
	return i, mapErr(err)
}

func (q queries) ListIdentities(ctx context.Context, tenantID string) ([]fleet.Identity, error) {
	rows, err := q.db.QueryContext(ctx, `
		select `+identityColumns+` from identities
		where tenant_id = $1 and status <> 'deleted'
		order by id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanIdentity)
}

func (q queries) UpdateIdentity(ctx context.Context, tenantID string, i *fleet.Identity) error {
	return expectOne(q.db.ExecContext(ctx, `
		update identities
		set email = $3, first_name = $4, last_name = $5, role = $6, status = $7,
			password_digest = $8, password_salt = $9, failed_attempts = $10,
			locked_until = $11, last_login_at = $12, updated_at = $13, updated_by = $14
		where tenant_id = $1 and id = $2 and status <> 'deleted'
	`, tenantID, i.ID, i.Email, i.FirstName, i.LastName, i.Role.String(), i.Status,
		i.Digest, i.Salt, i.FailedAttempts,
		nullTime(i.LockedUntil), nullTime(i.LastLoginAt), i.UpdatedAt, i.UpdatedBy))
}

func (q queries) InsertVehicle(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	_, err := q.db.ExecContext(ctx, `
		insert into vehicles (`+vehicleColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, v.ID, tenantID, v.OwnerID, v.PlateNumber, v.Brand, v.Model, v.ModelYear, v.Type, v.Status,
		v.LastLatitude, v.LastLongitude, nullTime(v.LastUpdateAt),
		v.CreatedAt, v.CreatedBy, v.UpdatedAt, v.UpdatedBy)
	return mapErr(err)
}

func (q queries) GetVehicle(ctx context.Context, tenantID, id string) (fleet.Vehicle, error) {
	v, err := scanVehicle(q.db.QueryRowContext(ctx, `
		select `+vehicleColumns+` from vehicles
		where tenant_id = $1 and id = $2 and status <> 'deleted'
	`, tenantID, id))
	return v, mapErr(err)
}

func (q queries) ListVehicles(ctx context.Context, tenantID string, f fleet.VehicleFilter) ([]fleet.Vehicle, error) {
	rows, err := q.db.QueryContext(ctx, `
		select `+vehicleColumns+` from vehicles
		where tenant_id = $1 and status <> 'deleted'
			and ($2 = '' or owner_id = $2)
			and ($3 = '' or type = $3)
		order by id
	`, tenantID, f.OwnerID, string(f.Type))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVehicle)
}

func (q queries) PlateTaken(ctx context.Context, tenantID, plate, exceptID string) (bool, error) {
	var taken bool
	err := q.db.QueryRowContext(ctx, `
		select exists(
			select 1 from vehicles
			where tenant_id = $1 and upper(plate_number) = upper($2) and id <> $3 and status <> 'deleted'
		)
	`, tenantID, plate, exceptID).Scan(&taken)
	return taken, err
}

// PostgreSQL caps a statement at 65535 bind parameters; large batches are
// split so every chunk stays well below it.
const (
	idsPerQuery   = 1000
	rowsPerInsert = 1000
)

// VehiclesByIDs builds explicit IN lists so the query works with any database/sql driver.
func (q queries) VehiclesByIDs(ctx context.Context, tenantID string, ids []string) ([]fleet.Vehicle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []fleet.Vehicle
	for start := 0; start < len(ids); start += idsPerQuery {
		end := min(start+idsPerQuery, len(ids))
		chunk, err := q.vehiclesByIDs(ctx, tenantID, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	if len(ids) > idsPerQuery {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out, nil
}

func (q queries) vehiclesByIDs(ctx context.Context, tenantID string, ids []string) ([]fleet.Vehicle, error) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	rows, err := q.db.QueryContext(ctx, `
		select `+vehicleColumns+` from vehicles
		where tenant_id = $1 and status <> 'deleted' and id in (`+strings.Join(placeholders, ", ")+`)
		order by id
	`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVehicle)
}

func (q queries) UpdateVehicle(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return expectOne(q.db.ExecContext(ctx, `
		update vehicles
		set owner_id = $3, plate_number = $4, brand = $5, model = $6, model_year = $7,
			type = $8, status = $9, updated_at = $10, updated_by = $11
		where tenant_id = $1 and id = $2 and status <> 'deleted'
	`, tenantID, v.ID, v.OwnerID, v.PlateNumber, v.Brand, v.Model, v.ModelYear,
		v.Type, v.Status, v.UpdatedAt, v.UpdatedBy))
}

func (q queries) UpdateVehiclePosition(ctx context.Context, tenantID string, v *fleet.Vehicle) error {
	return expectOne(q.db.ExecContext(ctx, `
		update vehicles
		set last_latitude = $3, last_longitude = $4, last_update_at = $5, updated_at = $6, updated_by = $7
		where tenant_id = $1 and id = $2 and status <> 'deleted'
	`, tenantID, v.ID, v.LastLatitude, v.LastLongitude, nullTime(v.LastUpdateAt), v.UpdatedAt, v.UpdatedBy))
}

func (q queries) SuspendMembers(ctx context.Context, tenantID string, at time.Time, by string) error {
	if _, err := q.db.ExecContext(ctx, `
		update identities set status = 'suspended', updated_at = $2, updated_by = $3
		where tenant_id = $1 and status <> 'deleted'
	`, tenantID, at, by); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		update vehicles set status = 'suspended', updated_at = $2, updated_by = $3
		where tenant_id = $1 and status <> 'deleted'
	`, tenantID, at, by)
	return err
}

// AppendLocations inserts history in chunks; callers run it inside a
// transaction so a failing chunk discards the whole batch.
func (q queries) AppendLocations(ctx context.Context, tenantID string, recs []fleet.LocationRecord) error {
	for start := 0; start < len(recs); start += rowsPerInsert {
		end := min(start+rowsPerInsert, len(recs))
		if err := q.insertLocations(ctx, tenantID, recs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (q queries) insertLocations(ctx context.Context, tenantID string, recs []fleet.LocationRecord) error {
	const perRow = 8
	args := make([]any, 0, len(recs)*perRow)
	values := make([]string, len(recs))
	for i, r := range recs {
		base := i * perRow
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, r.ID, r.VehicleID, tenantID, r.Latitude, r.Longitude, r.Address, r.RecordedAt, r.CreatedBy)
	}
	_, err := q.db.ExecContext(ctx, `
		insert into location_records (`+locationColumns+`)
		values `+strings.Join(values, ", "), args...)
	return mapErr(err)
}

func (q queries) LocationHistory(ctx context.Context, tenantID, vehicleID string, limit int) ([]fleet.LocationRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		select `+locationColumns+` from location_records
		where tenant_id = $1 and vehicle_id = $2
		order by recorded_at desc, id desc
		limit $3
	`, tenantID, vehicleID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row scanner) (fleet.LocationRecord, error) {
		var r fleet.LocationRecord
		err := row.Scan(&r.ID, &r.VehicleID, &r.TenantID, &r.Latitude, &r.Longitude, &r.Address, &r.RecordedAt, &r.CreatedBy)
		r.RecordedAt = r.RecordedAt.UTC()
		return r, err
	})
}
