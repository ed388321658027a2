package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opticonnect.org/internal/ids"
)

// RequestType classifies what the requester wants to do in the region.
type RequestType string

const (
	RequestAccess       RequestType = "access"
	RequestModification RequestType = "modification"
	RequestCreation     RequestType = "creation"
)

// ParseRequestType validates a request type value.
func ParseRequestType(s string) (RequestType, bool) {
	t := RequestType(strings.TrimSpace(strings.ToLower(s)))
	switch t {
	case RequestAccess, RequestModification, RequestCreation:
		return t, true
	}
	return "", false
}

// RequestStatus is monotonic: pending transitions exactly once to
// approved or rejected and can never be re-reviewed.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// RegionRequest is a user's petition for access to a region, reviewed
// by an admin or manager.
type RegionRequest struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Region      string        `json:"region"`
	RequestType RequestType   `json:"request_type"`
	Reason      string        `json:"reason"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ReviewedBy  string        `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
	ReviewNotes string        `json:"review_notes,omitempty"`
}

// Workflow drives region requests through their lifecycle. Approval
// and the resulting region assignment happen in a single store
// operation; there is no window where a request is approved but the
// region not yet granted.
type Workflow struct {
	store RequestStore
	now   func() time.Time
}

// WorkflowOption configures Workflow behavior.
type WorkflowOption func(*Workflow)

// WithWorkflowClock overrides the time source, useful in tests.
func WithWorkflowClock(fn func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if fn != nil {
			w.now = fn
		}
	}
}

// NewWorkflow constructs the request workflow over the given store.
func NewWorkflow(store RequestStore, opts ...WorkflowOption) (*Workflow, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: request store is required", ErrInvalidInput)
	}
	w := &Workflow{store: store, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Create inserts a pending request. A second pending request by the
// same user for the same region is rejected.
func (w *Workflow) Create(ctx context.Context, userID, region string, requestType RequestType, reason string) (RegionRequest, error) {
	userID = strings.TrimSpace(userID)
	region = strings.TrimSpace(region)
	reason = strings.TrimSpace(reason)
	if userID == "" || region == "" {
		return RegionRequest{}, fmt.Errorf("%w: user_id and region are required", ErrInvalidInput)
	}
	if _, ok := ParseRequestType(string(requestType)); !ok {
		return RegionRequest{}, fmt.Errorf("%w: unsupported request type %q", ErrInvalidInput, requestType)
	}
	req := RegionRequest{
		ID:          ids.New(),
		UserID:      userID,
		Region:      region,
		RequestType: requestType,
		Reason:      reason,
		Status:      RequestPending,
		CreatedAt:   w.now().UTC(),
	}
	if err := w.store.CreateRequest(ctx, req); err != nil {
		return RegionRequest{}, err
	}
	return req, nil
}

// Approve transitions a pending request to approved and, atomically
// with the transition, adds the region to the requester's assigned
// set.
func (w *Workflow) Approve(ctx context.Context, requestID, reviewerID, notes string) (RegionRequest, error) {
	requestID = strings.TrimSpace(requestID)
	reviewerID = strings.TrimSpace(reviewerID)
	if requestID == "" || reviewerID == "" {
		return RegionRequest{}, fmt.Errorf("%w: request_id and reviewer_id are required", ErrInvalidInput)
	}
	return w.store.ApproveRequest(ctx, requestID, reviewerID, strings.TrimSpace(notes), w.now().UTC())
}

// Reject transitions a pending request to rejected with no side effect
// on the requester's regions.
func (w *Workflow) Reject(ctx context.Context, requestID, reviewerID, notes string) (RegionRequest, error) {
	requestID = strings.TrimSpace(requestID)
	reviewerID = strings.TrimSpace(reviewerID)
	if requestID == "" || reviewerID == "" {
		return RegionRequest{}, fmt.Errorf("%w: request_id and reviewer_id are required", ErrInvalidInput)
	}
	return w.store.RejectRequest(ctx, requestID, reviewerID, strings.TrimSpace(notes), w.now().UTC())
}

// Request returns a single request record.
func (w *Workflow) Request(ctx context.Context, requestID string) (RegionRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return RegionRequest{}, fmt.Errorf("%w: request_id is required", ErrInvalidInput)
	}
	return w.store.GetRequest(ctx, requestID)
}

// Requests lists requests, optionally filtered by status.
func (w *Workflow) Requests(ctx context.Context, status RequestStatus) ([]RegionRequest, error) {
	return w.store.ListRequests(ctx, status)
}

// RequestsForUser lists the user's own requests.
func (w *Workflow) RequestsForUser(ctx context.Context, userID string) ([]RegionRequest, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return w.store.RequestsForUser(ctx, userID)
}
