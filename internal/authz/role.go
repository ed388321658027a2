package authz

import "strings"

// Role is the coarse access level carried on every user record.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleUser       Role = "user"
)

// ValidRoles lists every role accepted on a profile.
var ValidRoles = []Role{RoleAdmin, RoleManager, RoleTechnician, RoleUser}

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	for _, v := range ValidRoles {
		if r == v {
			return r, true
		}
	}
	return "", false
}

var roleDefaults = map[Role][]string{
	RoleManager: {
		PermDistanceUse, PermPolygonUse, PermCircleUse, PermElevationUse,
		PermInfrastructureUse, PermSectorUse,
		PermMeasurementCreate, PermMeasurementViewAny, PermMeasurementEditOwn,
		PermPolygonCreate, PermPolygonEditTeam, PermPolygonDeleteOwn,
		PermInfrastructureCreate, PermInfrastructureEditTeam, PermInfrastructureDeleteOwn,
		PermManageGrants, PermReviewRequests,
		PermSearchUse,
	},
	RoleTechnician: {
		PermDistanceUse, PermPolygonUse, PermCircleUse, PermElevationUse,
		PermInfrastructureUse,
		PermMeasurementCreate, PermMeasurementViewOwn, PermMeasurementEditOwn,
		PermPolygonCreate, PermPolygonEditOwn, PermPolygonDeleteOwn,
		PermInfrastructureCreate, PermInfrastructureEditOwn,
		PermSearchUse,
	},
	RoleUser: {
		PermDistanceUse,
		PermMeasurementViewOwn,
		PermSearchUse,
	},
}

// RoleDefaults returns the static permission baseline for a role.
// Admin is defined as the wildcard, not an enumeration, so new catalog
// entries are automatically included.
func RoleDefaults(role Role) PermissionSet {
	if role == RoleAdmin {
		return AllPermissions()
	}
	return NewPermissionSet(roleDefaults[role]...)
}
