package fleet

import (
	"fmt"
	"strings"
	"time"

	"tkfleet.io/internal/auth"
)

// Status is the lifecycle state shared by tenants, identities and vehicles.
// Deleted is terminal and is the only soft-delete marker.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusSuspended || next == StatusDeleted
	case StatusSuspended:
		return next == StatusActive || next == StatusDeleted
	}
	return false
}

func (s Status) transition(next Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// Audit carries the stamps set by Scope on insert and update.
type Audit struct {
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Tenant is the isolation boundary. Names are unique among non-deleted tenants.
type Tenant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
	Audit
}

// Identity is a user of one tenant.
type Identity struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	Role           auth.Role  `json:"role"`
	Status         Status     `json:"status"`
	Digest         []byte     `json:"-"`
	Salt           []byte     `json:"-"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	Audit
}

// Locked reports whether the identity is locked out at now.
func (i Identity) Locked(now time.Time) bool {
	return i.LockedUntil != nil && now.Before(*i.LockedUntil)
}

// VehicleType classifies vehicles for typed queries.
type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleTruck      VehicleType = "truck"
	VehicleVan        VehicleType = "van"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBus        VehicleType = "bus"
	VehicleOther      VehicleType = "other"
)

// ParseVehicleType accepts a type name case-insensitively. Blank means other.
func ParseVehicleType(raw string) (VehicleType, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return VehicleOther, nil
	}
	switch t := VehicleType(raw); t {
	case VehicleCar, VehicleTruck, VehicleVan, VehicleMotorcycle, VehicleBus, VehicleOther:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown vehicle type %q", ErrInvalidInput, raw)
}

// Vehicle is owned by one identity of the same tenant and carries its last known position.
type Vehicle struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenant_id"`
	OwnerID       string      `json:"owner_id"`
	PlateNumber   string      `json:"plate_number"`
	Brand         string      `json:"brand,omitempty"`
	Model         string      `json:"model,omitempty"`
	ModelYear     int         `json:"model_year,omitempty"`
	Type          VehicleType `json:"type"`
	Status        Status      `json:"status"`
	LastLatitude  float64     `json:"last_latitude"`
	LastLongitude float64     `json:"last_longitude"`
	LastUpdateAt  *time.Time  `json:"last_update_at,omitempty"`
	Audit
}

// LocationRecord is one immutable entry of a vehicle's position history.
type LocationRecord struct {
	ID         string    `json:"id"`
	VehicleID  string    `json:"vehicle_id"`
	TenantID   string    `json:"tenant_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	CreatedBy  string    `json:"created_by,omitempty"`
}

// VehicleFilter narrows ListVehicles. Zero fields do not filter.
type VehicleFilter struct {
	OwnerID string
	Type    VehicleType
}
