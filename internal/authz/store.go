package authz

import (
	"context"
	"time"
)

// Store describes persistence required by the authorization engine.
// Implementations load everything at session start and mutate through
// the explicit operations below; the engine itself never touches a
// database.
type Store interface {
	Profiles() ProfileStore
	Groups() GroupStore
	Grants() GrantStore
	Requests() RequestStore
}

// ProfileStore manages per-user authorization profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	SaveProfile(ctx context.Context, profile Profile) error
	AddAssignedRegion(ctx context.Context, userID, region string) error
	AddGroupMembership(ctx context.Context, userID, groupID string) error
	RemoveGroupMembership(ctx context.Context, userID, groupID string) error
}

// GroupStore manages group records.
type GroupStore interface {
	CreateGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, groupID string) (Group, error)
	SaveGroup(ctx context.Context, group Group) error
	DeleteGroup(ctx context.Context, groupID string) error
	ListGroups(ctx context.Context) ([]Group, error)
	GroupsForUser(ctx context.Context, userID string) ([]Group, error)
}

// GrantStore manages temporary access grants.
type GrantStore interface {
	CreateGrant(ctx context.Context, grant TemporaryAccessGrant) error
	GetGrant(ctx context.Context, grantID string) (TemporaryAccessGrant, error)
	SaveGrant(ctx context.Context, grant TemporaryAccessGrant) error
	GrantsForUser(ctx context.Context, userID string) ([]TemporaryAccessGrant, error)
}

// RequestStore manages region requests. ApproveRequest performs the
// status transition and the requester's region assignment as one
// atomic operation.
type RequestStore interface {
	CreateRequest(ctx context.Context, req RegionRequest) error
	GetRequest(ctx context.Context, requestID string) (RegionRequest, error)
	ApproveRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (RegionRequest, error)
	RejectRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (RegionRequest, error)
	ListRequests(ctx context.Context, status RequestStatus) ([]RegionRequest, error)
	RequestsForUser(ctx context.Context, userID string) ([]RegionRequest, error)
}
