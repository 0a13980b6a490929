package auth

import (
	"errors"
	"testing"
)

func TestCanAccessRuleTable(t *testing.T) {
	cases := []struct {
		name  string
		role  Role
		owner string
		want  bool
	}{
		{"superuser any owner", RoleSuperUser, "someone-else", true},
		{"admin any owner", RoleAdmin, "someone-else", true},
		{"admin no owner", RoleAdmin, "", true},
		{"user owns", RoleUser, "caller", true},
		{"user foreign", RoleUser, "someone-else", false},
		{"observer owns", RoleObserver, "caller", true},
		{"observer foreign", RoleObserver, "someone-else", false},
		{"user empty owner", RoleUser, "", false},
		{"zero role", Role(0), "someone-else", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Principal{IdentityID: "caller", TenantID: "t1", Role: tc.role}
			if got := CanAccess(p, tc.owner); got != tc.want {
				t.Fatalf("CanAccess = %v, want %v", got, tc.want)
			}
			err := Authorize(p, tc.owner)
			if tc.want && err != nil {
				t.Fatalf("Authorize unexpected error: %v", err)
			}
			if !tc.want && !errors.Is(err, ErrForbidden) {
				t.Fatalf("Authorize err = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	admin := Principal{IdentityID: "a", Role: RoleAdmin}
	if err := RequireRole(admin, RoleAdmin); err != nil {
		t.Fatalf("admin should pass admin gate: %v", err)
	}
	if err := RequireSuperUser(admin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin should fail superuser gate, got %v", err)
	}
	user := Principal{IdentityID: "u", Role: RoleUser}
	if err := RequireRole(user, RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user should fail admin gate, got %v", err)
	}
}

func TestRequireTenant(t *testing.T) {
	user := Principal{IdentityID: "u", TenantID: "t1", Role: RoleAdmin}
	if err := RequireTenant(user, "t1"); err != nil {
		t.Fatalf("same tenant: %v", err)
	}
	if err := RequireTenant(user, "t2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign tenant err = %v", err)
	}
	root := Principal{IdentityID: "r", TenantID: "t1", Role: RoleSuperUser}
	if err := RequireTenant(root, "t2"); err != nil {
		t.Fatalf("superuser crosses tenants: %v", err)
	}
}

func TestGuardSelfDelete(t *testing.T) {
	admin := Principal{IdentityID: "admin-1", Role: RoleAdmin}
	if err := GuardSelfDelete(admin, "admin-1"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("self delete err = %v", err)
	}
	if err := GuardSelfDelete(admin, "other"); err != nil {
		t.Fatalf("deleting other identity: %v", err)
	}
}

func TestCanGrant(t *testing.T) {
	admin := Principal{IdentityID: "a", Role: RoleAdmin}
	if err := CanGrant(admin, RoleUser); err != nil {
		t.Fatalf("admin grants user: %v", err)
	}
	if err := CanGrant(admin, RoleSuperUser); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin grants superuser err = %v", err)
	}
	if err := CanGrant(Principal{Role: RoleUser}, RoleObserver); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user grants err = %v", err)
	}
	if err := CanGrant(admin, Role(42)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown role err = %v", err)
	}
}

func TestRoleOrderingAndText(t *testing.T) {
	if !(RoleObserver < RoleUser && RoleUser < RoleAdmin && RoleAdmin < RoleSuperUser) {
		t.Fatal("roles are not ordered")
	}
	for _, raw := range []string{"admin", "ADMIN", " Admin "} {
		r, err := ParseRole(raw)
		if err != nil || r != RoleAdmin {
			t.Fatalf("ParseRole(%q) = %v, %v", raw, r, err)
		}
	}
	if _, err := ParseRole("root"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ParseRole(root) err = %v", err)
	}
	text, err := RoleSuperUser.MarshalText()
	if err != nil || string(text) != "SuperUser" {
		t.Fatalf("MarshalText = %q, %v", text, err)
	}
	if RoleObserver.AtLeast(RoleUser) || !RoleSuperUser.AtLeast(RoleObserver) {
		t.Fatal("AtLeast ordering broken")
	}
}
