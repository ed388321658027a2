package authz

import "testing"

func TestCatalogIndex(t *testing.T) {
	p, ok := PermissionByID(PermPolygonDeleteOwn)
	if !ok {
		t.Fatalf("catalog missing %s", PermPolygonDeleteOwn)
	}
	if p.Module != "gis" {
		t.Fatalf("module = %q, want gis", p.Module)
	}
	if p.Scope != ScopeOwn {
		t.Fatalf("scope = %q, want own", p.Scope)
	}
	if _, ok := PermissionByID("gis.unknown.tool"); ok {
		t.Fatalf("unexpected catalog entry for unknown id")
	}
}

func TestScopeOf(t *testing.T) {
	cases := map[string]Scope{
		"gis.polygon.edit.own":   ScopeOwn,
		"gis.polygon.edit.team":  ScopeTeam,
		"gis.polygon.edit.any":   ScopeAny,
		"gis.polygon.create":     ScopeNone,
		"future.module.view.own": ScopeOwn,
	}
	for id, want := range cases {
		if got := scopeOf(id); got != want {
			t.Fatalf("scopeOf(%s) = %q, want %q", id, got, want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole("  Manager "); !ok || r != RoleManager {
		t.Fatalf("ParseRole(Manager) = %q, %v", r, ok)
	}
	if _, ok := ParseRole("superadmin"); ok {
		t.Fatalf("expected superadmin to be rejected")
	}
}

func TestRoleDefaults(t *testing.T) {
	if !RoleDefaults(RoleAdmin).IsAll() {
		t.Fatalf("admin defaults must be the wildcard")
	}
	user := RoleDefaults(RoleUser)
	if !user.Has(PermDistanceUse) {
		t.Fatalf("user defaults missing %s", PermDistanceUse)
	}
	if user.Has(PermManageGrants) {
		t.Fatalf("user defaults must not include %s", PermManageGrants)
	}
	tech := RoleDefaults(RoleTechnician)
	if !tech.Has(PermPolygonCreate) || tech.Has(PermReviewRequests) {
		t.Fatalf("unexpected technician defaults")
	}
}
