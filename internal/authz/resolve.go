package authz

import "time"

// EffectivePermissions is the result of combining role defaults,
// group-inherited permissions, and direct per-user grants.
type EffectivePermissions struct {
	Direct     PermissionSet
	FromGroups PermissionSet
	All        PermissionSet
}

// Resolve computes the effective permission set for a profile.
//
// The model is union-only: a permission granted by any source stays
// granted until it is removed at that source. There are no deny lists
// or overrides; adding masking semantics would be a behavior change,
// not a fix.
func Resolve(profile Profile, groups []Group, now time.Time) EffectivePermissions {
	if profile.Role == RoleAdmin {
		return EffectivePermissions{
			Direct:     NewPermissionSet(),
			FromGroups: NewPermissionSet(),
			All:        AllPermissions(),
		}
	}

	var fromGroups []string
	for _, g := range groups {
		if !g.IsActive || !profile.MemberOf(g.ID) {
			continue
		}
		fromGroups = append(fromGroups, g.Permissions...)
	}

	var direct []string
	for _, d := range profile.DirectPermissions {
		if d.Expired(now) {
			continue
		}
		direct = append(direct, d.ID)
	}

	eff := EffectivePermissions{
		Direct:     NewPermissionSet(direct...),
		FromGroups: NewPermissionSet(fromGroups...),
	}
	eff.All = RoleDefaults(profile.Role).Union(eff.FromGroups).Union(eff.Direct)
	return eff
}

// RegionsFromGroups returns the union of region sets contributed by
// the profile's active group memberships.
func RegionsFromGroups(profile Profile, groups []Group) []string {
	var regions []string
	for _, g := range groups {
		if !g.IsActive || !profile.MemberOf(g.ID) {
			continue
		}
		regions = append(regions, g.AssignedRegions...)
	}
	return dedupeStrings(regions)
}
