package authz

import (
	"context"
	"fmt"
	"time"

	"opticonnect.org/internal/obs"
	"opticonnect.org/internal/region"
)

const defaultResolveTimeout = 3 * time.Second

// Decision is the outcome of an authorization check. The reason is
// rendered verbatim by callers on denial.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Target carries the optional facts about what the action touches.
type Target struct {
	// Coordinate, when set, triggers the geofence check.
	Coordinate *region.Coordinate
	// ResourceOwnerID, when set, triggers the ownership-scope check
	// for own/team/any scoped permissions.
	ResourceOwnerID string
	// ResourceOwnerRegions are the owner's assigned regions, supplied
	// by the caller for team-scope checks.
	ResourceOwnerRegions []string
}

// Engine is the single decision entry point consumed by every tool.
// It is read-only: no call into Authorize ever mutates ledger or
// registry state.
type Engine struct {
	resolver       region.Resolver
	now            func() time.Time
	resolveTimeout time.Duration
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithEngineClock overrides the time source, useful in tests.
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithResolveTimeout bounds the external region lookup. A lookup that
// exceeds the bound resolves to the unresolved outcome, never hangs.
func WithResolveTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.resolveTimeout = d
		}
	}
}

// NewEngine constructs the decision engine. The resolver may be nil
// when no geofencing data is available; every coordinate then takes
// the unresolved fail-open path.
func NewEngine(resolver region.Resolver, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver:       resolver,
		now:            time.Now,
		resolveTimeout: defaultResolveTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize decides whether the profile may perform the action. It
// never returns an error; every input combination yields a Decision.
//
// Checks run in order: effective permission, ownership scope, then
// geofence. A region lookup that fails or matches no region allows
// the action (fail-open) and emits a telemetry event; this mirrors
// the documented availability-over-enforcement trade-off.
func (e *Engine) Authorize(ctx context.Context, profile Profile, groups []Group, grants []TemporaryAccessGrant, action string, target *Target) Decision {
	d := e.authorize(ctx, profile, groups, grants, action, target)
	obs.RecordDecision(d.Allowed)
	return d
}

func (e *Engine) authorize(ctx context.Context, profile Profile, groups []Group, grants []TemporaryAccessGrant, action string, target *Target) Decision {
	if profile.Role == RoleAdmin {
		return allow()
	}
	now := e.now().UTC()

	eff := Resolve(profile, groups, now)
	if !eff.All.Has(action) {
		return deny("missing permission: %s", action)
	}

	if target != nil && target.ResourceOwnerID != "" {
		if d, ok := e.checkScope(profile, groups, action, target); !ok {
			return d
		}
	}

	if target != nil && target.Coordinate != nil {
		regionID, resolved := e.resolve(ctx, *target.Coordinate)
		if !resolved {
			obs.RecordRegionFallback()
			obs.LogEvent("authz.region_fallback", map[string]any{
				"user_id": profile.UserID,
				"action":  action,
				"lat":     target.Coordinate.Lat,
				"lng":     target.Coordinate.Lng,
			})
			return allow()
		}
		if !CanAccessRegion(profile, grants, regionID, now) {
			return deny("region access denied: %s", regionID)
		}
	}

	return allow()
}

func (e *Engine) checkScope(profile Profile, groups []Group, action string, target *Target) (Decision, bool) {
	scope := scopeOf(action)
	if p, ok := PermissionByID(action); ok {
		scope = p.Scope
	}
	switch scope {
	case ScopeOwn:
		if target.ResourceOwnerID != profile.UserID {
			return deny("scope violation"), false
		}
	case ScopeTeam:
		if !sharesTeam(profile, groups, target.ResourceOwnerID, target.ResourceOwnerRegions) {
			return deny("scope violation"), false
		}
	}
	return Decision{}, true
}

// sharesTeam reports whether the resource owner shares at least one
// active group or one assigned region with the subject.
func sharesTeam(profile Profile, groups []Group, ownerID string, ownerRegions []string) bool {
	if ownerID == profile.UserID {
		return true
	}
	for _, g := range groups {
		if !g.IsActive || !profile.MemberOf(g.ID) {
			continue
		}
		if g.HasMember(ownerID) {
			return true
		}
	}
	for _, r := range ownerRegions {
		if profile.HasAssignedRegion(r) {
			return true
		}
	}
	return false
}

// resolve maps the coordinate to a region id, converting lookup
// failures, timeouts, and out-of-coverage points to the single
// unresolved outcome.
func (e *Engine) resolve(ctx context.Context, c region.Coordinate) (string, bool) {
	if e.resolver == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, e.resolveTimeout)
	defer cancel()
	id, err := e.resolver.ResolveRegion(ctx, c)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}
