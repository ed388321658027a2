package authz

import "sort"

// PermissionSet is a tagged value: either an enumerated set of dotted
// permission ids, or the wildcard that contains every permission. The
// wildcard is kept distinct from a materialized catalog so that
// permissions added later are included without a migration.
type PermissionSet struct {
	all bool
	ids map[string]struct{}
}

// NewPermissionSet builds an enumerated set from ids.
func NewPermissionSet(ids ...string) PermissionSet {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return PermissionSet{ids: set}
}

// AllPermissions returns the wildcard set.
func AllPermissions() PermissionSet {
	return PermissionSet{all: true}
}

// IsAll reports whether the set is the wildcard.
func (s PermissionSet) IsAll() bool { return s.all }

// Has reports membership; the wildcard contains any id.
func (s PermissionSet) Has(id string) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// HasAny reports whether at least one id is in the set.
func (s PermissionSet) HasAny(ids ...string) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// HasAll reports whether every id is in the set.
func (s PermissionSet) HasAll(ids ...string) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Union returns the combination of both sets. Union with the wildcard
// is the wildcard.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	if s.all || other.all {
		return AllPermissions()
	}
	merged := make(map[string]struct{}, len(s.ids)+len(other.ids))
	for id := range s.ids {
		merged[id] = struct{}{}
	}
	for id := range other.ids {
		merged[id] = struct{}{}
	}
	return PermissionSet{ids: merged}
}

// Len returns the number of enumerated ids; zero for the wildcard.
func (s PermissionSet) Len() int {
	if s.all {
		return 0
	}
	return len(s.ids)
}

// IDs returns the enumerated ids sorted; nil for the wildcard.
func (s PermissionSet) IDs() []string {
	if s.all || len(s.ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
