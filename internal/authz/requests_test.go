package authz

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubRequestStore struct {
	requests map[string]RegionRequest
	assigned map[string][]string
}

func newStubRequestStore() *stubRequestStore {
	return &stubRequestStore{
		requests: make(map[string]RegionRequest),
		assigned: make(map[string][]string),
	}
}

func (s *stubRequestStore) CreateRequest(ctx context.Context, req RegionRequest) error {
	for _, existing := range s.requests {
		if existing.UserID == req.UserID && existing.Region == req.Region && existing.Status == RequestPending {
			return ErrDuplicatePending
		}
	}
	s.requests[req.ID] = req
	return nil
}

func (s *stubRequestStore) GetRequest(ctx context.Context, requestID string) (RegionRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return RegionRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *stubRequestStore) ApproveRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (RegionRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return RegionRequest{}, ErrNotFound
	}
	if req.Status != RequestPending {
		return RegionRequest{}, ErrInvalidState
	}
	s.assigned[req.UserID] = append(s.assigned[req.UserID], req.Region)
	req.Status = RequestApproved
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &at
	req.ReviewNotes = notes
	s.requests[requestID] = req
	return req, nil
}

func (s *stubRequestStore) RejectRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (RegionRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return RegionRequest{}, ErrNotFound
	}
	if req.Status != RequestPending {
		return RegionRequest{}, ErrInvalidState
	}
	req.Status = RequestRejected
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &at
	req.ReviewNotes = notes
	s.requests[requestID] = req
	return req, nil
}

func (s *stubRequestStore) ListRequests(ctx context.Context, status RequestStatus) ([]RegionRequest, error) {
	var out []RegionRequest
	for _, req := range s.requests {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *stubRequestStore) RequestsForUser(ctx context.Context, userID string) ([]RegionRequest, error) {
	var out []RegionRequest
	for _, req := range s.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	return out, nil
}

func testWorkflow(t *testing.T, now time.Time) (*Workflow, *stubRequestStore) {
	t.Helper()
	store := newStubRequestStore()
	wf, err := NewWorkflow(store, WithWorkflowClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	return wf, store
}

func TestCreateRequest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wf, _ := testWorkflow(t, now)
	ctx := context.Background()

	if _, err := wf.Create(ctx, "u1", "", RequestAccess, "need it"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing region: err = %v, want ErrInvalidInput", err)
	}
	if _, err := wf.Create(ctx, "u1", "Delhi", "escalation", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad type: err = %v, want ErrInvalidInput", err)
	}

	req, err := wf.Create(ctx, "u1", "Delhi", RequestAccess, "site survey")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.Status != RequestPending || req.CreatedAt != now {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestDuplicatePendingRequest(t *testing.T) {
	now := time.Now().UTC()
	wf, _ := testWorkflow(t, now)
	ctx := context.Background()

	if _, err := wf.Create(ctx, "u1", "Delhi", RequestAccess, "first"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := wf.Create(ctx, "u1", "Delhi", RequestModification, "second"); !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("duplicate: err = %v, want ErrDuplicatePending", err)
	}
	// A different region or a different user is fine.
	if _, err := wf.Create(ctx, "u1", "Kerala", RequestAccess, ""); err != nil {
		t.Fatalf("other region: %v", err)
	}
	if _, err := wf.Create(ctx, "u2", "Delhi", RequestAccess, ""); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestApproveAssignsRegion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wf, store := testWorkflow(t, now)
	ctx := context.Background()

	req, err := wf.Create(ctx, "u1", "Delhi", RequestAccess, "site survey")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	approved, err := wf.Approve(ctx, req.ID, "mgr", "ok")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != RequestApproved || approved.ReviewedBy != "mgr" || approved.ReviewedAt == nil {
		t.Fatalf("unexpected approved request: %+v", approved)
	}
	if got := store.assigned["u1"]; len(got) != 1 || got[0] != "Delhi" {
		t.Fatalf("region not assigned on approval: %v", got)
	}

	// Review is terminal: a second review of either kind fails.
	if _, err := wf.Approve(ctx, req.ID, "mgr2", ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double approve: err = %v, want ErrInvalidState", err)
	}
	if _, err := wf.Reject(ctx, req.ID, "mgr2", ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("reject after approve: err = %v, want ErrInvalidState", err)
	}
}

func TestRejectHasNoSideEffect(t *testing.T) {
	now := time.Now().UTC()
	wf, store := testWorkflow(t, now)
	ctx := context.Background()

	req, err := wf.Create(ctx, "u1", "Delhi", RequestCreation, "new site")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rejected, err := wf.Reject(ctx, req.ID, "mgr", "not yet")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != RequestRejected || rejected.ReviewNotes != "not yet" {
		t.Fatalf("unexpected rejected request: %+v", rejected)
	}
	if len(store.assigned["u1"]) != 0 {
		t.Fatalf("rejection must not assign regions")
	}

	// After rejection the user may file again.
	if _, err := wf.Create(ctx, "u1", "Delhi", RequestAccess, "retry"); err != nil {
		t.Fatalf("re-create after rejection: %v", err)
	}
}

func TestRequestsFilterByStatus(t *testing.T) {
	now := time.Now().UTC()
	wf, _ := testWorkflow(t, now)
	ctx := context.Background()

	a, _ := wf.Create(ctx, "u1", "Delhi", RequestAccess, "")
	if _, err := wf.Create(ctx, "u2", "Kerala", RequestAccess, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := wf.Approve(ctx, a.ID, "mgr", ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	pending, err := wf.Requests(ctx, RequestPending)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(pending) != 1 || pending[0].UserID != "u2" {
		t.Fatalf("pending = %+v", pending)
	}
	all, err := wf.Requests(ctx, "")
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %+v", all)
	}
}
