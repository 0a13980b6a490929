package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tkfleet.io/internal/auth"
)

// NewVehicle is the input for CreateVehicle.
type NewVehicle struct {
	OwnerID     string
	PlateNumber string
	Brand       string
	Model       string
	ModelYear   int
	Type        VehicleType
}

// VehiclePatch updates vehicle details. Nil fields are left untouched.
type VehiclePatch struct {
	PlateNumber *string
	Brand       *string
	Model       *string
	ModelYear   *int
	Type        *VehicleType
	OwnerID     *string
}

const maxPlateLen = 20

func normalizePlate(raw string) (string, error) {
	plate := strings.ToUpper(strings.TrimSpace(raw))
	if plate == "" || len(plate) > maxPlateLen {
		return "", fmt.Errorf("%w: plate number must be 1-%d characters", ErrInvalidInput, maxPlateLen)
	}
	return plate, nil
}

// CreateVehicle registers a vehicle for an owner of the request tenant. Admin or higher.
func (s *Service) CreateVehicle(ctx context.Context, in NewVehicle) (Vehicle, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Vehicle{}, err
	}
	if err := auth.RequireRole(p, auth.RoleAdmin); err != nil {
		return Vehicle{}, err
	}
	plate, err := normalizePlate(in.PlateNumber)
	if err != nil {
		return Vehicle{}, err
	}
	vt, err := ParseVehicleType(string(in.Type))
	if err != nil {
		return Vehicle{}, err
	}
	if in.ModelYear < 0 {
		return Vehicle{}, fmt.Errorf("%w: model year must not be negative", ErrInvalidInput)
	}
	v := Vehicle{
		OwnerID:     strings.TrimSpace(in.OwnerID),
		PlateNumber: plate,
		Brand:       strings.TrimSpace(in.Brand),
		Model:       strings.TrimSpace(in.Model),
		ModelYear:   in.ModelYear,
		Type:        vt,
		Status:      StatusActive,
	}
	err = RunInTx(ctx, s.store, func(q Queryer) error {
		sc, err := s.scope(q, tenantID, p.IdentityID)
		if err != nil {
			return err
		}
		if err := checkOwner(ctx, sc, v.OwnerID); err != nil {
			return err
		}
		if err := checkPlate(ctx, sc, plate, ""); err != nil {
			return err
		}
		return sc.InsertVehicle(ctx, &v)
	})
	if err != nil {
		return Vehicle{}, err
	}
	s.audit(ctx, "vehicle.create", map[string]any{"vehicle_id": v.ID, "owner_id": v.OwnerID, "plate": v.PlateNumber})
	return v, nil
}

// checkOwner requires the owner to be a live identity of the scope's tenant.
func checkOwner(ctx context.Context, sc *Scope, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if _, err := sc.GetIdentity(ctx, ownerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: owner not found in tenant", ErrInvalidInput)
		}
		return err
	}
	return nil
}

func checkPlate(ctx context.Context, sc *Scope, plate, exceptID string) error {
	taken, err := sc.PlateTaken(ctx, plate, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: plate number %q already in use", ErrConflict, plate)
	}
	return nil
}

// AuthorizeVehicle loads a vehicle of the request tenant and checks the caller
// may act on it. Callers below Admin get ErrForbidden both for vehicles they
// do not own and for vehicles that do not exist, so existence is not leaked.
func (s *Service) AuthorizeVehicle(ctx context.Context, id string) (Vehicle, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Vehicle{}, err
	}
	v, err := s.store.GetVehicle(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) && !p.Role.AtLeast(auth.RoleAdmin) {
			return Vehicle{}, auth.ErrForbidden
		}
		return Vehicle{}, err
	}
	if err := auth.Authorize(p, v.OwnerID); err != nil {
		return Vehicle{}, err
	}
	return v, nil
}

// GetVehicle returns a vehicle the caller may see.
func (s *Service) GetVehicle(ctx context.Context, id string) (Vehicle, error) {
	return s.AuthorizeVehicle(ctx, id)
}

// ListVehicles returns every vehicle of the tenant for Admins and the caller's own vehicles otherwise.
func (s *Service) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	f := VehicleFilter{}
	if !p.Role.AtLeast(auth.RoleAdmin) {
		f.OwnerID = p.IdentityID
	}
	return s.store.ListVehicles(ctx, tenantID, f)
}

// ListVehiclesByOwner returns the vehicles of ownerID. Admins may ask for anyone, others only for themselves.
func (s *Service) ListVehiclesByOwner(ctx context.Context, ownerID string) ([]Vehicle, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, ownerID); err != nil {
		return nil, err
	}
	return s.store.ListVehicles(ctx, tenantID, VehicleFilter{OwnerID: ownerID})
}

// ListVehiclesByType returns the tenant's vehicles of one type. Admin or higher.
func (s *Service) ListVehiclesByType(ctx context.Context, vt VehicleType) ([]Vehicle, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireRole(p, auth.RoleAdmin); err != nil {
		return nil, err
	}
	vt, err = ParseVehicleType(string(vt))
	if err != nil {
		return nil, err
	}
	return s.store.ListVehicles(ctx, tenantID, VehicleFilter{Type: vt})
}

// UpdateVehicle changes vehicle details. Admin or higher.
func (s *Service) UpdateVehicle(ctx context.Context, id string, patch VehiclePatch) (Vehicle, error) {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return Vehicle{}, err
	}
	if err := auth.RequireRole(p, auth.RoleAdmin); err != nil {
		return Vehicle{}, err
	}
	out, err := s.mutateVehicle(ctx, tenantID, p.IdentityID, id, func(sc *Scope, v *Vehicle) error {
		if patch.PlateNumber != nil {
			plate, err := normalizePlate(*patch.PlateNumber)
			if err != nil {
				return err
			}
			if plate != v.PlateNumber {
				if err := checkPlate(ctx, sc, plate, v.ID); err != nil {
					return err
				}
			}
			v.PlateNumber = plate
		}
		if patch.Brand != nil {
			v.Brand = strings.TrimSpace(*patch.Brand)
		}
		if patch.Model != nil {
			v.Model = strings.TrimSpace(*patch.Model)
		}
		if patch.ModelYear != nil {
			if *patch.ModelYear < 0 {
				return fmt.Errorf("%w: model year must not be negative", ErrInvalidInput)
			}
			v.ModelYear = *patch.ModelYear
		}
		if patch.Type != nil {
			vt, err := ParseVehicleType(string(*patch.Type))
			if err != nil {
				return err
			}
			v.Type = vt
		}
		if patch.OwnerID != nil {
			owner := strings.TrimSpace(*patch.OwnerID)
			if err := checkOwner(ctx, sc, owner); err != nil {
				return err
			}
			v.OwnerID = owner
		}
		return nil
	})
	if err != nil {
		return Vehicle{}, err
	}
	s.audit(ctx, "vehicle.update", map[string]any{"vehicle_id": id})
	return out, nil
}

// DeleteVehicle soft-deletes a vehicle. Its location history is kept. Admin or higher.
func (s *Service) DeleteVehicle(ctx context.Context, id string) error {
	p, tenantID, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if err := auth.RequireRole(p, auth.RoleAdmin); err != nil {
		return err
	}
	_, err = s.mutateVehicle(ctx, tenantID, p.IdentityID, id, func(_ *Scope, v *Vehicle) error {
		if err := v.Status.transition(StatusDeleted); err != nil {
			return err
		}
		v.Status = StatusDeleted
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, "vehicle.delete", map[string]any{"vehicle_id": id})
	return nil
}

// mutateVehicle loads, changes and stores a vehicle in one transaction and
// returns the stored row.
func (s *Service) mutateVehicle(ctx context.Context, tenantID, actor, id string, fn func(*Scope, *Vehicle) error) (Vehicle, error) {
	var out Vehicle
	err := RunInTx(ctx, s.store, func(q Queryer) error {
		sc, err := s.scope(q, tenantID, actor)
		if err != nil {
			return err
		}
		v, err := sc.GetVehicle(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(sc, &v); err != nil {
			return err
		}
		if err := sc.UpdateVehicle(ctx, &v); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
