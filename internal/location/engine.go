package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/fleet"
	"tkfleet.io/internal/obs"
	"tkfleet.io/internal/tenant"
)

// DefaultHistoryLimit applies when History is called with a non-positive limit.
const DefaultHistoryLimit = 100

// ErrInvalidCoordinates reports a latitude outside [-90,90] or a longitude outside [-180,180].
var ErrInvalidCoordinates = errors.New("location: invalid coordinates")

// Position is the last known position of a vehicle.
type Position struct {
	VehicleID string     `json:"vehicle_id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Update is one entry of a batch.
type Update struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// BatchResult lists which vehicles of a batch were written and which were skipped.
type BatchResult struct {
	Updated []string  `json:"updated"`
	Skipped []string  `json:"skipped"`
	At      time.Time `json:"at"`
}

// Engine applies position updates and appends history inside the request tenant.
// It does not check ownership; callers authorize the vehicle first.
type Engine struct {
	store fleet.Store
	now   func() time.Time
}

// Option configures Engine behavior.
type Option func(*Engine) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) error {
		if fn != nil {
			e.now = fn
		}
		return nil
	}
}

// NewEngine constructs Engine with optional configuration.
func NewEngine(store fleet.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("location: store is required")
	}
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ValidateCoordinates checks lat/lon ranges.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, lat, lon)
	}
	return nil
}

func (e *Engine) scope(ctx context.Context, q fleet.Queryer) (*fleet.Scope, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	actor := ""
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		actor = p.IdentityID
	}
	return fleet.NewScope(q, tenantID, actor, e.now)
}

// UpdateSingle overwrites the vehicle's current position and appends one
// history record in the same transaction.
func (e *Engine) UpdateSingle(ctx context.Context, vehicleID string, lat, lon float64) (Position, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return Position{}, err
	}
	if _, err := tenant.Require(ctx); err != nil {
		return Position{}, err
	}
	var pos Position
	err := fleet.RunInTx(ctx, e.store, func(q fleet.Queryer) error {
		sc, err := e.scope(ctx, q)
		if err != nil {
			return err
		}
		v, err := sc.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		at := e.now().UTC()
		v.LastLatitude, v.LastLongitude = lat, lon
		if err := sc.UpdateVehiclePosition(ctx, &v, at); err != nil {
			return err
		}
		if err := sc.AppendLocations(ctx, []fleet.LocationRecord{{
			VehicleID:  v.ID,
			Latitude:   lat,
			Longitude:  lon,
			RecordedAt: at,
		}}); err != nil {
			return err
		}
		pos = positionOf(v)
		return nil
	})
	if err != nil {
		obs.LocationUpdates.WithLabelValues("single", "error").Inc()
		return Position{}, err
	}
	obs.LocationUpdates.WithLabelValues("single", "ok").Inc()
	return pos, nil
}

// UpdateBatch applies every update whose vehicle exists in the request tenant.
// All vehicles share one timestamp. Position fields are written before history
// and both commit or roll back together. Unknown or deleted vehicles are
// skipped, not reported as errors.
func (e *Engine) UpdateBatch(ctx context.Context, updates map[string]Update) (BatchResult, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return BatchResult{}, err
	}
	requested := make([]string, 0, len(updates))
	for id, u := range updates {
		if err := ValidateCoordinates(u.Latitude, u.Longitude); err != nil {
			return BatchResult{}, fmt.Errorf("vehicle %s: %w", id, err)
		}
		requested = append(requested, id)
	}
	sort.Strings(requested)
	obs.LocationBatchSize.Observe(float64(len(requested)))

	at := e.now().UTC()
	res := BatchResult{Updated: []string{}, Skipped: []string{}, At: at}
	if len(requested) == 0 {
		return res, nil
	}

	err := fleet.RunInTx(ctx, e.store, func(q fleet.Queryer) error {
		sc, err := e.scope(ctx, q)
		if err != nil {
			return err
		}
		vehicles, err := sc.VehiclesByIDs(ctx, requested)
		if err != nil {
			return err
		}
		found := make(map[string]struct{}, len(vehicles))
		recs := make([]fleet.LocationRecord, 0, len(vehicles))
		for i := range vehicles {
			v := &vehicles[i]
			u := updates[v.ID]
			v.LastLatitude, v.LastLongitude = u.Latitude, u.Longitude
			if err := sc.UpdateVehiclePosition(ctx, v, at); err != nil {
				return err
			}
			found[v.ID] = struct{}{}
			recs = append(recs, fleet.LocationRecord{
				VehicleID:  v.ID,
				Latitude:   u.Latitude,
				Longitude:  u.Longitude,
				Address:    u.Address,
				RecordedAt: at,
			})
		}
		if len(recs) > 0 {
			if err := sc.AppendLocations(ctx, recs); err != nil {
				return err
			}
		}
		for _, id := range requested {
			if _, ok := found[id]; ok {
				res.Updated = append(res.Updated, id)
			} else {
				res.Skipped = append(res.Skipped, id)
			}
		}
		return nil
	})
	if err != nil {
		obs.LocationUpdates.WithLabelValues("batch", "error").Inc()
		return BatchResult{}, err
	}
	obs.LocationUpdates.WithLabelValues("batch", "ok").Add(float64(len(res.Updated)))
	obs.LocationSkipped.Add(float64(len(res.Skipped)))
	return res, nil
}

// Read returns the last known position of a vehicle in the request tenant.
func (e *Engine) Read(ctx context.Context, vehicleID string) (Position, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return Position{}, err
	}
	v, err := e.store.GetVehicle(ctx, tenantID, vehicleID)
	if err != nil {
		return Position{}, err
	}
	return positionOf(v), nil
}

// History returns up to limit records for the vehicle, newest first.
func (e *Engine) History(ctx context.Context, vehicleID string, limit int) ([]fleet.LocationRecord, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recs, err := e.store.LocationHistory(ctx, tenantID, vehicleID, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []fleet.LocationRecord{}
	}
	return recs, nil
}

func positionOf(v fleet.Vehicle) Position {
	return Position{
		VehicleID: v.ID,
		Latitude:  v.LastLatitude,
		Longitude: v.LastLongitude,
		UpdatedAt: v.LastUpdateAt,
	}
}
