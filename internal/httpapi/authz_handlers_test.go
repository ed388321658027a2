package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opticonnect.org/internal/authz"
	"opticonnect.org/internal/region"
	"opticonnect.org/internal/store/memstore"
)

var testDirectory = region.NewDirectory(
	region.Region{ID: "Delhi", Name: "Delhi", Boundary: []region.Ring{{
		{Lat: 28.40, Lng: 76.84}, {Lat: 28.40, Lng: 77.35},
		{Lat: 28.89, Lng: 77.35}, {Lat: 28.89, Lng: 76.84},
	}}},
)

func newTestAPI(t *testing.T) (*API, *memstore.Store) {
	t.Helper()
	store := memstore.New()

	ledger, err := authz.NewLedger(store.Grants())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	workflow, err := authz.NewWorkflow(store.Requests())
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	registry, err := authz.NewRegistry(store.Groups(), store.Profiles())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	api := New(Config{
		Version:     "test",
		Store:       store,
		Engine:      authz.NewEngine(testDirectory),
		Ledger:      ledger,
		Workflow:    workflow,
		Registry:    registry,
		DisableAuth: true,
	})
	return api, store
}

func doJSON(t *testing.T, api *API, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func seedProfile(t *testing.T, store *memstore.Store, p authz.Profile) {
	t.Helper()
	if err := store.Profiles().SaveProfile(context.Background(), p); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["service"] != "opticonnect-authz" {
		t.Fatalf("body = %v", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	api, _ := newTestAPI(t)
	if rec := doJSON(t, api, http.MethodGet, "/v1/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPermissionsCatalog(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/v1/permissions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := doJSON(t, api, http.MethodPost, "/v1/permissions", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthorizeEndpoint(t *testing.T) {
	api, store := newTestAPI(t)
	seedProfile(t, store, authz.Profile{
		UserID: "t1", Role: authz.RoleTechnician, AssignedRegions: []string{"Delhi"},
	})

	rec := doJSON(t, api, http.MethodPost, "/v1/authorize", map[string]any{
		"user_id":    "t1",
		"action":     authz.PermMeasurementCreate,
		"coordinate": map[string]float64{"lat": 28.61, "lng": 77.21},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var decision authz.Decision
	decodeBody(t, rec, &decision)
	if !decision.Allowed {
		t.Fatalf("decision = %+v", decision)
	}

	// Denial is still HTTP 200.
	rec = doJSON(t, api, http.MethodPost, "/v1/authorize", map[string]any{
		"user_id": "t1",
		"action":  authz.PermManageGrants,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeBody(t, rec, &decision)
	if decision.Allowed || decision.Reason == "" {
		t.Fatalf("decision = %+v", decision)
	}

	// Unknown subject is a client error, not a silent deny.
	rec = doJSON(t, api, http.MethodPost, "/v1/authorize", map[string]any{
		"user_id": "ghost",
		"action":  authz.PermDistanceUse,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthorizeValidation(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api, http.MethodPost, "/v1/authorize", map[string]any{"user_id": "t1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := doJSON(t, api, http.MethodGet, "/v1/authorize", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGrantLifecycle(t *testing.T) {
	api, store := newTestAPI(t)
	seedProfile(t, store, authz.Profile{UserID: "t1", Role: authz.RoleTechnician})

	rec := doJSON(t, api, http.MethodPost, "/v1/grants", map[string]any{
		"user_id":    "t1",
		"region":     "Delhi",
		"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var grant authz.TemporaryAccessGrant
	decodeBody(t, rec, &grant)
	if grant.ID == "" || grant.GrantedBy != "local" {
		t.Fatalf("grant = %+v", grant)
	}

	// Past expiry is rejected.
	rec = doJSON(t, api, http.MethodPost, "/v1/grants", map[string]any{
		"user_id":    "t1",
		"region":     "Delhi",
		"expires_at": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/v1/grants?user_id=t1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var listing struct {
		Grants []authz.TemporaryAccessGrant `json:"grants"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Grants) != 1 {
		t.Fatalf("grants = %+v", listing.Grants)
	}

	rec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/v1/grants/%s/revoke", grant.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, "/v1/grants/missing/revoke", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRegionRequestFlow(t *testing.T) {
	api, store := newTestAPI(t)
	seedProfile(t, store, authz.Profile{UserID: "t1", Role: authz.RoleTechnician})

	rec := doJSON(t, api, http.MethodPost, "/v1/region-requests", map[string]any{
		"user_id":      "t1",
		"region":       "Delhi",
		"request_type": "access",
		"reason":       "site survey",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var req authz.RegionRequest
	decodeBody(t, rec, &req)
	if req.Status != authz.RequestPending {
		t.Fatalf("request = %+v", req)
	}

	// One pending request per user and region.
	rec = doJSON(t, api, http.MethodPost, "/v1/region-requests", map[string]any{
		"user_id":      "t1",
		"region":       "Delhi",
		"request_type": "access",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/v1/region-requests/%s/approve", req.ID), map[string]any{
		"notes": "ok",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var approved authz.RegionRequest
	decodeBody(t, rec, &approved)
	if approved.Status != authz.RequestApproved || approved.ReviewedBy != "local" {
		t.Fatalf("approved = %+v", approved)
	}

	profile, err := store.Profiles().GetProfile(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if !profile.HasAssignedRegion("Delhi") {
		t.Fatalf("approval did not assign the region: %+v", profile)
	}

	// The transition is terminal.
	rec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/v1/region-requests/%s/reject", req.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/v1/region-requests?status=approved", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var listing struct {
		Requests []authz.RegionRequest `json:"requests"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Requests) != 1 {
		t.Fatalf("requests = %+v", listing.Requests)
	}
}

func TestGroupEndpoints(t *testing.T) {
	api, store := newTestAPI(t)
	seedProfile(t, store, authz.Profile{UserID: "u1", Role: authz.RoleUser})

	rec := doJSON(t, api, http.MethodPost, "/v1/groups", map[string]any{
		"name":             "north-field",
		"permissions":      []string{authz.PermSectorUse},
		"assigned_regions": []string{"Delhi"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var group authz.Group
	decodeBody(t, rec, &group)
	if group.ID == "" || !group.IsActive {
		t.Fatalf("group = %+v", group)
	}

	rec = doJSON(t, api, http.MethodPost, fmt.Sprintf("/v1/groups/%s/members", group.ID), map[string]any{
		"user_id": "u1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Membership shows up in the user's effective permissions.
	rec = doJSON(t, api, http.MethodGet, "/v1/users/u1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view struct {
		EffectivePermissions []string `json:"effective_permissions"`
		GroupRegions         []string `json:"group_regions"`
	}
	decodeBody(t, rec, &view)
	found := false
	for _, id := range view.EffectivePermissions {
		if id == authz.PermSectorUse {
			found = true
		}
	}
	if !found {
		t.Fatalf("group permission missing from profile view: %v", view.EffectivePermissions)
	}
	if len(view.GroupRegions) != 1 || view.GroupRegions[0] != "Delhi" {
		t.Fatalf("group regions = %v", view.GroupRegions)
	}

	rec = doJSON(t, api, http.MethodDelete, fmt.Sprintf("/v1/groups/%s/members/u1", group.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	inactive := false
	rec = doJSON(t, api, http.MethodPatch, "/v1/groups/"+group.ID, map[string]any{
		"is_active": inactive,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &group)
	if group.IsActive {
		t.Fatalf("group still active after update")
	}

	rec = doJSON(t, api, http.MethodDelete, "/v1/groups/"+group.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodGet, "/v1/groups/"+group.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSaveProfileEndpoint(t *testing.T) {
	api, store := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPut, "/v1/users/u1/profile", map[string]any{
		"user_id":          "ignored",
		"role":             "technician",
		"assigned_regions": []string{"Delhi"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	p, err := store.Profiles().GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Role != authz.RoleTechnician || !p.HasAssignedRegion("Delhi") {
		t.Fatalf("profile = %+v", p)
	}

	rec = doJSON(t, api, http.MethodPut, "/v1/users/u2/profile", map[string]any{
		"user_id": "u2",
		"role":    "superadmin",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	api, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("X-Request-Id = %q", got)
	}

	// A request id is minted when the client sends none.
	rec = doJSON(t, api, http.MethodGet, "/healthz", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing generated X-Request-Id")
	}
}
