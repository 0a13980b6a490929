package location_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/fleet"
	"tkfleet.io/internal/location"
	"tkfleet.io/internal/store/memory"
	"tkfleet.io/internal/tenant"
)

var errHistoryDown = errors.New("history insert failed")

// failingStore fails every AppendLocations issued inside a transaction.
type failingStore struct {
	*memory.Store
}

func (s failingStore) Begin(ctx context.Context) (fleet.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingTx{Tx: tx}, nil
}

type failingTx struct {
	fleet.Tx
}

func (failingTx) AppendLocations(context.Context, string, []fleet.LocationRecord) error {
	return errHistoryDown
}

func fixedClock() func() time.Time {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func seed(t *testing.T, s *memory.Store, tenantID string, vehicleIDs ...string) {
	t.Helper()
	for i, id := range vehicleIDs {
		v := &fleet.Vehicle{ID: id, OwnerID: "owner-1", PlateNumber: "PL-" + id + string(rune('A'+i)), Status: fleet.StatusActive}
		if err := s.InsertVehicle(context.Background(), tenantID, v); err != nil {
			t.Fatalf("InsertVehicle %s: %v", id, err)
		}
	}
}

func tenantCtx(tenantID string) context.Context {
	ctx := auth.ContextWithPrincipal(context.Background(), auth.Principal{IdentityID: "actor-1", TenantID: tenantID, Role: auth.RoleAdmin})
	return tenant.WithTenant(ctx, tenantID)
}

func newEngine(t *testing.T, s fleet.Store) *location.Engine {
	t.Helper()
	e, err := location.NewEngine(s, location.WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestUpdateSingleAndRead(t *testing.T) {
	s := memory.New()
	seed(t, s, "t1", "v1")
	e := newEngine(t, s)
	ctx := tenantCtx("t1")

	pos, err := e.UpdateSingle(ctx, "v1", 40.0, 29.0)
	if err != nil {
		t.Fatalf("UpdateSingle: %v", err)
	}
	if pos.Latitude != 40 || pos.Longitude != 29 || pos.UpdatedAt == nil {
		t.Fatalf("unexpected position %+v", pos)
	}

	got, err := e.Read(ctx, "v1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Latitude != 40 || got.Longitude != 29 {
		t.Fatalf("read returned %+v", got)
	}

	hist, err := e.History(ctx, "v1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(hist))
	}
	rec := hist[0]
	if rec.TenantID != "t1" || rec.CreatedBy != "actor-1" || !rec.RecordedAt.Equal(*got.UpdatedAt) {
		t.Fatalf("unexpected record %+v", rec)
	}

	v, _ := s.GetVehicle(context.Background(), "t1", "v1")
	if v.UpdatedBy != "actor-1" {
		t.Fatalf("expected update stamp, got %q", v.UpdatedBy)
	}
}

func TestUpdateSingleErrors(t *testing.T) {
	s := memory.New()
	seed(t, s, "t1", "v1")
	e := newEngine(t, s)

	if _, err := e.UpdateSingle(context.Background(), "v1", 1, 1); !errors.Is(err, tenant.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
	if _, err := e.UpdateSingle(tenantCtx("t1"), "missing", 1, 1); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.UpdateSingle(tenantCtx("t2"), "v1", 1, 1); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected foreign tenant vehicle to be invisible, got %v", err)
	}
	if _, err := e.UpdateSingle(tenantCtx("t1"), "v1", 91, 0); !errors.Is(err, location.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates, got %v", err)
	}
	if _, err := e.Read(tenantCtx("t1"), "missing"); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on read, got %v", err)
	}
}

func TestUpdateSingleDeletedVehicle(t *testing.T) {
	s := memory.New()
	seed(t, s, "t1", "v1")
	v, _ := s.GetVehicle(context.Background(), "t1", "v1")
	v.Status = fleet.StatusDeleted
	if err := s.UpdateVehicle(context.Background(), "t1", &v); err != nil {
		t.Fatalf("UpdateVehicle: %v", err)
	}
	e := newEngine(t, s)

	if _, err := e.UpdateSingle(tenantCtx("t1"), "v1", 1, 1); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted vehicle, got %v", err)
	}
}

func TestUpdateBatchSkipsMissing(t *testing.T) {
	s := memory.New()
	seed(t, s, "t1", "a")
	e := newEngine(t, s)
	ctx := tenantCtx("t1")

	res, err := e.UpdateBatch(ctx, map[string]location.Update{
		"a": {Latitude: 10, Longitude: 20, Address: "Main st"},
		"b": {Latitude: 1, Longitude: 2},
	})
	if err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if len(res.Updated) != 1 || res.Updated[0] != "a" {
		t.Fatalf("unexpected updated %v", res.Updated)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "b" {
		t.Fatalf("unexpected skipped %v", res.Skipped)
	}

	hist, _ := e.History(ctx, "a", 10)
	if len(hist) != 1 || hist[0].Address != "Main st" {
		t.Fatalf("expected one record with address, got %+v", hist)
	}
	if hist, _ := e.History(ctx, "b", 10); len(hist) != 0 {
		t.Fatalf("skipped vehicle got history: %+v", hist)
	}
}

func TestUpdateBatchSharesTimestamp(t *testing.T) {
	s := memory.New()
	seed(t, s, "t1", "a", "b", "c")
	e := newEngine(t, s)
	ctx := tenantCtx("t1")

	res, err := e.UpdateBatch(ctx, map[string]location.Update{
		"a": {Latitude: 1, Longitude: 1},
		"b": {Latitude: 2, Longitude: 2},
		"c": {Latitude: 3, Longitude: 3},
	})
	if err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		pos, err := e.Read(ctx, id)
		if err != nil {
			t.Fatalf("Read %s: %v", id, err)
		}
		if pos.UpdatedAt == nil || !pos.UpdatedAt.Equal(res.At) {
			t.Fatalf("vehicle %s stamped %v, batch at %v", id, pos.UpdatedAt, res.At)
		}
		hist, _ := e.History(ctx, id, 1)
		if len(hist) != 1 || !hist[0].RecordedAt.Equal(res.At) {
			t.Fatalf("vehicle %s history %+v", id, hist)
		}
	}
}

func TestUpdateBatchRollsBackOnHistoryFailure(t *testing.T) {
	mem := memory.New()
	seed(t, mem, "t1", "a")
	ctx := tenantCtx("t1")

	good := newEngine(t, mem)
	if _, err := good.UpdateSingle(ctx, "a", 5, 6); err != nil {
		t.Fatalf("UpdateSingle: %v", err)
	}
	before, _ := good.Read(ctx, "a")

	bad := newEngine(t, failingStore{Store: mem})
	_, err := bad.UpdateBatch(ctx, map[string]location.Update{"a": {Latitude: 50, Longitude: 60}})
	if !errors.Is(err, errHistoryDown) {
		t.Fatalf("expected original error, got %v", err)
	}

	after, _ := good.Read(ctx, "a")
	if after.Latitude != before.Latitude || after.Longitude != before.Longitude || !after.UpdatedAt.Equal(*before.UpdatedAt) {
		t.Fatalf("position changed after rollback: before %+v after %+v", before, after)
	}
	hist, _ := good.History(ctx, "a", 10)
	if len(hist) != 1 {
		t.Fatalf("expected only the original record, got %d", len(hist))
	}
}

func TestUpdateBatchRequiresTenant(t *testing.T) {
	e := newEngine(t, memory.New())
	_, err := e.UpdateBatch(context.Background(), map[string]location.Update{"a": {}})
	if !errors.Is(err, tenant.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
}

func TestUpdateBatchRejectsBadCoordinates(t *testing.T) {
	s := memory.New()
	seed(t, s, "t1", "a")
	e := newEngine(t, s)
	ctx := tenantCtx("t1")

	_, err := e.UpdateBatch(ctx, map[string]location.Update{
		"a": {Latitude: 1, Longitude: 1},
		"b": {Latitude: 0, Longitude: 181},
	})
	if !errors.Is(err, location.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates, got %v", err)
	}
	if pos, _ := e.Read(ctx, "a"); pos.UpdatedAt != nil {
		t.Fatal("valid entry written despite rejected batch")
	}
}

func TestHistoryLimitAndOrder(t *testing.T) {
	s := memory.New()
	seed(t, s, "t1", "a")
	e := newEngine(t, s)
	ctx := tenantCtx("t1")

	for i := 0; i < 5; i++ {
		if _, err := e.UpdateSingle(ctx, "a", float64(i), 0); err != nil {
			t.Fatalf("UpdateSingle: %v", err)
		}
	}
	hist, err := e.History(ctx, "a", 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 records, got %d", len(hist))
	}
	if hist[0].Latitude != 4 || hist[2].Latitude != 2 {
		t.Fatalf("expected newest first, got %v %v", hist[0].Latitude, hist[2].Latitude)
	}
	if !hist[0].RecordedAt.After(hist[1].RecordedAt) {
		t.Fatal("records not ordered newest first")
	}
}

func TestValidateCoordinates(t *testing.T) {
	cases := []struct {
		lat, lon float64
		ok       bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
	}
	for _, c := range cases {
		err := location.ValidateCoordinates(c.lat, c.lon)
		if (err == nil) != c.ok {
			t.Fatalf("ValidateCoordinates(%v,%v) = %v", c.lat, c.lon, err)
		}
	}
}
