package auth

import (
	"fmt"
	"strings"
)

// Role is an ordered capability level. A higher role can do everything a lower one can.
type Role int

const (
	RoleObserver Role = iota + 1
	RoleUser
	RoleAdmin
	RoleSuperUser
)

var roleNames = map[Role]string{
	RoleObserver:  "Observer",
	RoleUser:      "User",
	RoleAdmin:     "Admin",
	RoleSuperUser: "SuperUser",
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(raw string) (Role, error) {
	raw = strings.TrimSpace(raw)
	for role, name := range roleNames {
		if strings.EqualFold(raw, name) {
			return role, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, raw)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r grants at least the capabilities of min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r >= min
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: unknown role %d", ErrInvalidArgument, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Principal is the authenticated caller of a request.
type Principal struct {
	IdentityID string
	TenantID   string
	Role       Role
}
