package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opticonnect.org/internal/ids"
)

// Group associates a permission set and a region set with a membership
// list. Every current member inherits both; removing a member removes
// that contribution immediately.
type Group struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Permissions     []string  `json:"permissions,omitempty"`
	AssignedRegions []string  `json:"assigned_regions,omitempty"`
	Members         []string  `json:"members,omitempty"`
	Managers        []string  `json:"managers,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasMember reports whether the user is a current member.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// GroupUpdate carries optional field changes for a group.
type GroupUpdate struct {
	Name            *string
	Permissions     []string
	AssignedRegions []string
	IsActive        *bool
}

// Registry is the only mutation surface for groups.
type Registry struct {
	store    GroupStore
	profiles ProfileStore
	now      func() time.Time
}

// RegistryOption configures Registry behavior.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the time source, useful in tests.
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a group registry over the given stores.
func NewRegistry(store GroupStore, profiles ProfileStore, opts ...RegistryOption) (*Registry, error) {
	if store == nil || profiles == nil {
		return nil, fmt.Errorf("%w: group and profile stores are required", ErrInvalidInput)
	}
	r := &Registry{store: store, profiles: profiles, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CreateGroup inserts an active group with the given permission and
// region sets.
func (r *Registry) CreateGroup(ctx context.Context, name string, permissions, regions []string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	now := r.now().UTC()
	group := Group{
		ID:              ids.New(),
		Name:            name,
		Permissions:     dedupeStrings(permissions),
		AssignedRegions: dedupeStrings(regions),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.store.CreateGroup(ctx, group); err != nil {
		return Group{}, err
	}
	return group, nil
}

// UpdateGroup applies field changes and bumps UpdatedAt.
func (r *Registry) UpdateGroup(ctx context.Context, groupID string, upd GroupUpdate) (Group, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return Group{}, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	group, err := r.store.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
		}
		group.Name = name
	}
	if upd.Permissions != nil {
		group.Permissions = dedupeStrings(upd.Permissions)
	}
	if upd.AssignedRegions != nil {
		group.AssignedRegions = dedupeStrings(upd.AssignedRegions)
	}
	if upd.IsActive != nil {
		group.IsActive = *upd.IsActive
	}
	group.UpdatedAt = r.now().UTC()
	if err := r.store.SaveGroup(ctx, group); err != nil {
		return Group{}, err
	}
	return group, nil
}

// DeleteGroup removes the group and detaches it from all member
// profiles in one store operation.
func (r *Registry) DeleteGroup(ctx context.Context, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return r.store.DeleteGroup(ctx, groupID)
}

// AddMember joins a user to the group and records the membership on
// the user's profile.
func (r *Registry) AddMember(ctx context.Context, groupID, userID string) (Group, error) {
	groupID = strings.TrimSpace(groupID)
	userID = strings.TrimSpace(userID)
	if groupID == "" || userID == "" {
		return Group{}, fmt.Errorf("%w: group_id and user_id are required", ErrInvalidInput)
	}
	group, err := r.store.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if group.HasMember(userID) {
		return group, nil
	}
	group.Members = append(group.Members, userID)
	group.UpdatedAt = r.now().UTC()
	if err := r.store.SaveGroup(ctx, group); err != nil {
		return Group{}, err
	}
	if err := r.profiles.AddGroupMembership(ctx, userID, groupID); err != nil {
		return Group{}, err
	}
	return group, nil
}

// RemoveMember leaves the group; the user's group-inherited
// permissions and regions disappear with the membership.
func (r *Registry) RemoveMember(ctx context.Context, groupID, userID string) (Group, error) {
	groupID = strings.TrimSpace(groupID)
	userID = strings.TrimSpace(userID)
	if groupID == "" || userID == "" {
		return Group{}, fmt.Errorf("%w: group_id and user_id are required", ErrInvalidInput)
	}
	group, err := r.store.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	members := group.Members[:0:0]
	for _, m := range group.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	group.Members = members
	group.UpdatedAt = r.now().UTC()
	if err := r.store.SaveGroup(ctx, group); err != nil {
		return Group{}, err
	}
	if err := r.profiles.RemoveGroupMembership(ctx, userID, groupID); err != nil {
		return Group{}, err
	}
	return group, nil
}

// Group returns a single group record.
func (r *Registry) Group(ctx context.Context, groupID string) (Group, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return Group{}, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return r.store.GetGroup(ctx, groupID)
}

// Groups lists all groups.
func (r *Registry) Groups(ctx context.Context) ([]Group, error) {
	return r.store.ListGroups(ctx)
}

// GroupsForUser returns the groups the user currently belongs to.
func (r *Registry) GroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return r.store.GroupsForUser(ctx, userID)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
