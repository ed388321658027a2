package httpapi

import (
	"net/http"
	"strings"
	"time"

	"opticonnect.org/internal/authz"
	"opticonnect.org/internal/region"
)

type authorizeRequest struct {
	UserID               string             `json:"user_id"`
	Action               string             `json:"action"`
	Coordinate           *region.Coordinate `json:"coordinate,omitempty"`
	ResourceOwnerID      string             `json:"resource_owner_id,omitempty"`
	ResourceOwnerRegions []string           `json:"resource_owner_regions,omitempty"`
}

type createGrantRequest struct {
	UserID       string    `json:"user_id"`
	Region       string    `json:"region"`
	ExpiresAt    time.Time `json:"expires_at"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
}

type createRegionRequest struct {
	UserID      string `json:"user_id,omitempty"`
	Region      string `json:"region"`
	RequestType string `json:"request_type"`
	Reason      string `json:"reason"`
}

type reviewRequest struct {
	Notes string `json:"notes,omitempty"`
}

type createGroupRequest struct {
	Name            string   `json:"name"`
	Permissions     []string `json:"permissions,omitempty"`
	AssignedRegions []string `json:"assigned_regions,omitempty"`
}

type updateGroupRequest struct {
	Name            *string  `json:"name,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
	AssignedRegions []string `json:"assigned_regions,omitempty"`
	IsActive        *bool    `json:"is_active,omitempty"`
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

// handleAuthorize is the decision endpoint every tool calls before
// permitting an action. It always answers 200 with a Decision; denial
// is data, not an HTTP error.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Action) == "" {
		writeError(w, http.StatusBadRequest, "user_id and action are required")
		return
	}

	profile, err := a.store.Profiles().GetProfile(r.Context(), req.UserID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	groups, err := a.store.Groups().GroupsForUser(r.Context(), req.UserID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	grants, err := a.store.Grants().GrantsForUser(r.Context(), req.UserID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}

	var target *authz.Target
	if req.Coordinate != nil || req.ResourceOwnerID != "" {
		target = &authz.Target{
			Coordinate:           req.Coordinate,
			ResourceOwnerID:      req.ResourceOwnerID,
			ResourceOwnerRegions: req.ResourceOwnerRegions,
		}
	}

	decision := a.engine.Authorize(r.Context(), profile, groups, grants, req.Action, target)
	if !decision.Allowed {
		a.audit(r.Context(), "authz.deny", "action", req.Action, map[string]any{
			"subject": req.UserID,
			"reason":  decision.Reason,
		})
	}
	writeJSON(w, http.StatusOK, decision)
}

// --- grants ---

func (a *API) handleGrants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		caller, ok := a.ensurePermission(w, r, authz.PermManageGrants)
		if !ok {
			return
		}
		var req createGrantRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		grant, err := a.ledger.Grant(r.Context(), req.UserID, req.Region, caller.UserID, req.ExpiresAt, authz.GrantOptions{
			ResourceType: req.ResourceType,
			ResourceID:   req.ResourceID,
		})
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		a.audit(r.Context(), "authz.grant.create", "grant", grant.ID, map[string]any{
			"subject":    grant.UserID,
			"region":     grant.Region,
			"expires_at": grant.ExpiresAt,
		})
		writeJSON(w, http.StatusCreated, grant)
	case http.MethodGet:
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id query parameter is required")
			return
		}
		if _, ok := a.ensurePermission(w, r, authz.PermManageGrants); !ok {
			return
		}
		grants, err := a.ledger.GrantsForUser(r.Context(), userID)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (a *API) handleGrantScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/grants/")
	if len(parts) != 2 || parts[1] != "revoke" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := a.ensurePermission(w, r, authz.PermManageGrants)
	if !ok {
		return
	}
	if err := a.ledger.Revoke(r.Context(), parts[0], caller.UserID); err != nil {
		handleAuthzError(w, err)
		return
	}
	a.audit(r.Context(), "authz.grant.revoke", "grant", parts[0], nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

// --- region requests ---

func (a *API) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		caller, _, err := a.callerProfile(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown caller")
			return
		}
		var req createRegionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		requester := caller.UserID
		if req.UserID != "" && req.UserID != caller.UserID {
			// Filing on behalf of someone else needs the review
			// permission.
			if _, ok := a.ensurePermission(w, r, authz.PermReviewRequests); !ok {
				return
			}
			requester = req.UserID
		}
		created, err := a.workflow.Create(r.Context(), requester, req.Region, authz.RequestType(req.RequestType), req.Reason)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		a.audit(r.Context(), "authz.request.create", "region_request", created.ID, map[string]any{
			"subject": created.UserID,
			"region":  created.Region,
		})
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, authz.PermReviewRequests); !ok {
			return
		}
		status := authz.RequestStatus(strings.TrimSpace(r.URL.Query().Get("status")))
		requests, err := a.workflow.Requests(r.Context(), status)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (a *API) handleRequestScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/region-requests/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := a.ensurePermission(w, r, authz.PermReviewRequests)
	if !ok {
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		reviewed authz.RegionRequest
		err      error
	)
	switch parts[1] {
	case "approve":
		reviewed, err = a.workflow.Approve(r.Context(), parts[0], caller.UserID, req.Notes)
	case "reject":
		reviewed, err = a.workflow.Reject(r.Context(), parts[0], caller.UserID, req.Notes)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	a.audit(r.Context(), "authz.request."+parts[1], "region_request", reviewed.ID, map[string]any{
		"subject": reviewed.UserID,
		"region":  reviewed.Region,
	})
	writeJSON(w, http.StatusOK, reviewed)
}

// --- groups ---

func (a *API) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if _, ok := a.ensurePermission(w, r, authz.PermManageGroups); !ok {
			return
		}
		var req createGroupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		group, err := a.registry.CreateGroup(r.Context(), req.Name, req.Permissions, req.AssignedRegions)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		a.audit(r.Context(), "authz.group.create", "group", group.ID, map[string]any{"name": group.Name})
		writeJSON(w, http.StatusCreated, group)
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, authz.PermManageGroups); !ok {
			return
		}
		groups, err := a.registry.Groups(r.Context())
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (a *API) handleGroupScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/groups/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	groupID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleGroup(w, r, groupID)
	case len(parts) == 2 && parts[1] == "members":
		a.handleGroupMembers(w, r, groupID)
	case len(parts) == 3 && parts[1] == "members":
		a.handleGroupMember(w, r, groupID, parts[2])
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleGroup(w http.ResponseWriter, r *http.Request, groupID string) {
	if _, ok := a.ensurePermission(w, r, authz.PermManageGroups); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		group, err := a.registry.Group(r.Context(), groupID)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, group)
	case http.MethodPatch:
		var req updateGroupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		group, err := a.registry.UpdateGroup(r.Context(), groupID, authz.GroupUpdate{
			Name:            req.Name,
			Permissions:     req.Permissions,
			AssignedRegions: req.AssignedRegions,
			IsActive:        req.IsActive,
		})
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		a.audit(r.Context(), "authz.group.update", "group", group.ID, nil)
		writeJSON(w, http.StatusOK, group)
	case http.MethodDelete:
		if err := a.registry.DeleteGroup(r.Context(), groupID); err != nil {
			handleAuthzError(w, err)
			return
		}
		a.audit(r.Context(), "authz.group.delete", "group", groupID, nil)
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

func (a *API) handleGroupMembers(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.ensurePermission(w, r, authz.PermManageGroups); !ok {
		return
	}
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := a.registry.AddMember(r.Context(), groupID, req.UserID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	a.audit(r.Context(), "authz.group.member.add", "group", groupID, map[string]any{"subject": req.UserID})
	writeJSON(w, http.StatusOK, group)
}

func (a *API) handleGroupMember(w http.ResponseWriter, r *http.Request, groupID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if _, ok := a.ensurePermission(w, r, authz.PermManageGroups); !ok {
		return
	}
	group, err := a.registry.RemoveMember(r.Context(), groupID, userID)
	if err != nil {
		handleAuthzError(w, err)
		return
	}
	a.audit(r.Context(), "authz.group.member.remove", "group", groupID, map[string]any{"subject": userID})
	writeJSON(w, http.StatusOK, group)
}

// --- user profiles ---

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/users/")
	if len(parts) != 2 || parts[1] != "profile" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]

	switch r.Method {
	case http.MethodGet:
		caller, _, err := a.callerProfile(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown caller")
			return
		}
		if caller.UserID != userID {
			if _, ok := a.ensurePermission(w, r, authz.PermManageUsers); !ok {
				return
			}
		}
		profile, err := a.store.Profiles().GetProfile(r.Context(), userID)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		groups, err := a.store.Groups().GroupsForUser(r.Context(), userID)
		if err != nil {
			handleAuthzError(w, err)
			return
		}
		eff := authz.Resolve(profile, groups, time.Now().UTC())
		writeJSON(w, http.StatusOK, map[string]any{
			"profile":               profile,
			"effective_permissions": eff.All.IDs(),
			"all_permissions":       eff.All.IsAll(),
			"group_regions":         authz.RegionsFromGroups(profile, groups),
		})
	case http.MethodPut:
		if _, ok := a.ensurePermission(w, r, authz.PermManageUsers); !ok {
			return
		}
		var profile authz.Profile
		if err := decodeJSON(r, &profile); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		profile.UserID = userID
		if _, ok := authz.ParseRole(string(profile.Role)); !ok {
			writeError(w, http.StatusBadRequest, "unsupported role")
			return
		}
		if err := a.store.Profiles().SaveProfile(r.Context(), profile); err != nil {
			handleAuthzError(w, err)
			return
		}
		a.audit(r.Context(), "authz.profile.save", "profile", userID, map[string]any{"role": profile.Role})
		writeJSON(w, http.StatusOK, profile)
	default:
		methodNotAllowed(w, r, "GET, PUT")
	}
}

func splitPath(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
