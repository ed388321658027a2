// Package memstore is the in-memory authz.Store used by tests and by
// deployments without a database. All reads return copies, so callers
// never observe a partial update.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opticonnect.org/internal/authz"
)

// Store holds every authorization record behind one lock. Mutations
// are single discrete operations; readers see either the old or the
// new state, never an intermediate one.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]authz.Profile
	groups   map[string]authz.Group
	grants   map[string]authz.TemporaryAccessGrant
	requests map[string]authz.RegionRequest
}

// New returns an empty store.
func New() *Store {
	return &Store{
		profiles: make(map[string]authz.Profile),
		groups:   make(map[string]authz.Group),
		grants:   make(map[string]authz.TemporaryAccessGrant),
		requests: make(map[string]authz.RegionRequest),
	}
}

var _ authz.Store = (*Store)(nil)

func (s *Store) Profiles() authz.ProfileStore { return (*profileStore)(s) }
func (s *Store) Groups() authz.GroupStore     { return (*groupStore)(s) }
func (s *Store) Grants() authz.GrantStore     { return (*grantStore)(s) }
func (s *Store) Requests() authz.RequestStore { return (*requestStore)(s) }

// --- profiles ---

type profileStore Store

func (s *profileStore) GetProfile(ctx context.Context, userID string) (authz.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return authz.Profile{}, authz.ErrNotFound
	}
	return copyProfile(p), nil
}

func (s *profileStore) SaveProfile(ctx context.Context, profile authz.Profile) error {
	if profile.UserID == "" {
		return fmt.Errorf("%w: user_id is required", authz.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = copyProfile(profile)
	return nil
}

func (s *profileStore) AddAssignedRegion(ctx context.Context, userID, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*Store)(s).addAssignedRegionLocked(userID, region)
}

func (s *Store) addAssignedRegionLocked(userID, region string) error {
	p, ok := s.profiles[userID]
	if !ok {
		return authz.ErrNotFound
	}
	if p.HasAssignedRegion(region) {
		return nil
	}
	p.AssignedRegions = append(append([]string(nil), p.AssignedRegions...), region)
	s.profiles[userID] = p
	return nil
}

func (s *profileStore) AddGroupMembership(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return authz.ErrNotFound
	}
	if p.MemberOf(groupID) {
		return nil
	}
	p.GroupIDs = append(append([]string(nil), p.GroupIDs...), groupID)
	s.profiles[userID] = p
	return nil
}

func (s *profileStore) RemoveGroupMembership(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return authz.ErrNotFound
	}
	kept := make([]string, 0, len(p.GroupIDs))
	for _, id := range p.GroupIDs {
		if id != groupID {
			kept = append(kept, id)
		}
	}
	p.GroupIDs = kept
	s.profiles[userID] = p
	return nil
}

// --- groups ---

type groupStore Store

func (s *groupStore) CreateGroup(ctx context.Context, group authz.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; ok {
		return authz.ErrConflict
	}
	for _, g := range s.groups {
		if g.Name == group.Name {
			return authz.ErrConflict
		}
	}
	s.groups[group.ID] = copyGroup(group)
	return nil
}

func (s *groupStore) GetGroup(ctx context.Context, groupID string) (authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return authz.Group{}, authz.ErrNotFound
	}
	return copyGroup(g), nil
}

func (s *groupStore) SaveGroup(ctx context.Context, group authz.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; !ok {
		return authz.ErrNotFound
	}
	s.groups[group.ID] = copyGroup(group)
	return nil
}

func (s *groupStore) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return authz.ErrNotFound
	}
	delete(s.groups, groupID)
	// Detach the group from member profiles in the same critical
	// section; membership and group record change together.
	for _, userID := range g.Members {
		p, ok := s.profiles[userID]
		if !ok {
			continue
		}
		kept := make([]string, 0, len(p.GroupIDs))
		for _, id := range p.GroupIDs {
			if id != groupID {
				kept = append(kept, id)
			}
		}
		p.GroupIDs = kept
		s.profiles[userID] = p
	}
	return nil
}

func (s *groupStore) ListGroups(ctx context.Context) ([]authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]authz.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, copyGroup(g))
	}
	sortGroups(out)
	return out, nil
}

func (s *groupStore) GroupsForUser(ctx context.Context, userID string) ([]authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.Group
	for _, g := range s.groups {
		if g.HasMember(userID) {
			out = append(out, copyGroup(g))
		}
	}
	sortGroups(out)
	return out, nil
}

// --- grants ---

type grantStore Store

func (s *grantStore) CreateGrant(ctx context.Context, grant authz.TemporaryAccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grant.ID]; ok {
		return authz.ErrConflict
	}
	s.grants[grant.ID] = grant
	return nil
}

func (s *grantStore) GetGrant(ctx context.Context, grantID string) (authz.TemporaryAccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID]
	if !ok {
		return authz.TemporaryAccessGrant{}, authz.ErrNotFound
	}
	return g, nil
}

func (s *grantStore) SaveGrant(ctx context.Context, grant authz.TemporaryAccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grant.ID]; !ok {
		return authz.ErrNotFound
	}
	s.grants[grant.ID] = grant
	return nil
}

func (s *grantStore) GrantsForUser(ctx context.Context, userID string) ([]authz.TemporaryAccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.TemporaryAccessGrant
	for _, g := range s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

// --- requests ---

type requestStore Store

func (s *requestStore) CreateRequest(ctx context.Context, req authz.RegionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.UserID == req.UserID && existing.Region == req.Region && existing.Status == authz.RequestPending {
			return authz.ErrDuplicatePending
		}
	}
	s.requests[req.ID] = req
	return nil
}

func (s *requestStore) GetRequest(ctx context.Context, requestID string) (authz.RegionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return authz.RegionRequest{}, authz.ErrNotFound
	}
	return req, nil
}

func (s *requestStore) ApproveRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (authz.RegionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return authz.RegionRequest{}, authz.ErrNotFound
	}
	if req.Status != authz.RequestPending {
		return authz.RegionRequest{}, authz.ErrInvalidState
	}
	// Transition and region assignment commit under the same lock;
	// no reader can see an approved request without the assignment.
	if err := (*Store)(s).addAssignedRegionLocked(req.UserID, req.Region); err != nil {
		return authz.RegionRequest{}, err
	}
	req.Status = authz.RequestApproved
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &at
	req.ReviewNotes = notes
	s.requests[requestID] = req
	return req, nil
}

func (s *requestStore) RejectRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (authz.RegionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return authz.RegionRequest{}, authz.ErrNotFound
	}
	if req.Status != authz.RequestPending {
		return authz.RegionRequest{}, authz.ErrInvalidState
	}
	req.Status = authz.RequestRejected
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &at
	req.ReviewNotes = notes
	s.requests[requestID] = req
	return req, nil
}

func (s *requestStore) ListRequests(ctx context.Context, status authz.RequestStatus) ([]authz.RegionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.RegionRequest
	for _, req := range s.requests {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	sortRequests(out)
	return out, nil
}

func (s *requestStore) RequestsForUser(ctx context.Context, userID string) ([]authz.RegionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.RegionRequest
	for _, req := range s.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	sortRequests(out)
	return out, nil
}

// Listing order matches the SQL store: groups by name, requests
// newest first.
func sortGroups(groups []authz.Group) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
}

func sortRequests(requests []authz.RegionRequest) {
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
}

func copyProfile(p authz.Profile) authz.Profile {
	p.DirectPermissions = append([]authz.DirectPermission(nil), p.DirectPermissions...)
	p.AssignedRegions = append([]string(nil), p.AssignedRegions...)
	p.GroupIDs = append([]string(nil), p.GroupIDs...)
	return p
}

func copyGroup(g authz.Group) authz.Group {
	g.Permissions = append([]string(nil), g.Permissions...)
	g.AssignedRegions = append([]string(nil), g.AssignedRegions...)
	g.Members = append([]string(nil), g.Members...)
	g.Managers = append([]string(nil), g.Managers...)
	return g
}
