package auth

import (
	"fmt"
	"strings"
)

// CanAccess decides whether the caller may act on a resource owned by ownerID.
// Admin and SuperUser pass regardless of ownership; anyone else must be the owner.
func CanAccess(p Principal, ownerID string) bool {
	if p.Role.AtLeast(RoleAdmin) {
		return true
	}
	return ownerID != "" && ownerID == p.IdentityID
}

// Authorize is CanAccess returning ErrForbidden on denial.
func Authorize(p Principal, ownerID string) error {
	if !CanAccess(p, ownerID) {
		return ErrForbidden
	}
	return nil
}

// RequireRole rejects callers below min.
func RequireRole(p Principal, min Role) error {
	if !p.Role.AtLeast(min) {
		return fmt.Errorf("%w: requires role %s", ErrForbidden, min)
	}
	return nil
}

// RequireSuperUser guards tenant management.
func RequireSuperUser(p Principal) error {
	return RequireRole(p, RoleSuperUser)
}

// RequireTenant rejects callers acting outside their own tenant. SuperUser may act in any tenant.
func RequireTenant(p Principal, tenantID string) error {
	if p.Role.AtLeast(RoleSuperUser) {
		return nil
	}
	if p.TenantID == "" || p.TenantID != tenantID {
		return fmt.Errorf("%w: tenant mismatch", ErrForbidden)
	}
	return nil
}

// GuardSelfDelete stops a caller from deleting their own identity.
func GuardSelfDelete(p Principal, targetID string) error {
	if strings.TrimSpace(targetID) != "" && targetID == p.IdentityID {
		return fmt.Errorf("%w: cannot delete own identity", ErrInvalidArgument)
	}
	return nil
}

// CanGrant reports whether the caller may hand out role; nobody grants above their own level.
func CanGrant(p Principal, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role", ErrInvalidArgument)
	}
	if err := RequireRole(p, RoleAdmin); err != nil {
		return err
	}
	if role > p.Role {
		return fmt.Errorf("%w: cannot grant %s", ErrForbidden, role)
	}
	return nil
}
