package authz

import "time"

// DirectPermission is a permission granted to exactly one user outside
// of role and group sources. The grant itself may be temporary.
type DirectPermission struct {
	ID        string     `json:"id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the grant has lapsed as of the given instant.
func (d DirectPermission) Expired(asOf time.Time) bool {
	return d.ExpiresAt != nil && !asOf.Before(*d.ExpiresAt)
}

// Profile is the per-user authorization record loaded at login and
// refreshed on administrative change.
type Profile struct {
	UserID            string             `json:"user_id"`
	Role              Role               `json:"role"`
	DirectPermissions []DirectPermission `json:"direct_permissions,omitempty"`
	AssignedRegions   []string           `json:"assigned_regions,omitempty"`
	GroupIDs          []string           `json:"group_ids,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// HasAssignedRegion reports whether the region is permanently assigned.
func (p Profile) HasAssignedRegion(region string) bool {
	for _, r := range p.AssignedRegions {
		if r == region {
			return true
		}
	}
	return false
}

// MemberOf reports whether the profile lists the group.
func (p Profile) MemberOf(groupID string) bool {
	for _, id := range p.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}
