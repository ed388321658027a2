package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opticonnect.org/internal/ids"
)

// TemporaryAccessGrant is a time-boxed, revocable grant of region
// access, independent of the static profile. A grant is never
// reactivated; expiry and revocation are terminal.
type TemporaryAccessGrant struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Region       string     `json:"region"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
	GrantedBy    string     `json:"granted_by"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    string     `json:"revoked_by,omitempty"`
}

// Active reports whether the grant confers access at the given
// instant. Expiry is a pure predicate of (grant, now); no background
// sweep exists or is needed for correctness.
func (g TemporaryAccessGrant) Active(asOf time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	return asOf.Before(g.ExpiresAt)
}

// GrantOptions carries the optional resource scoping of a grant.
type GrantOptions struct {
	ResourceType string
	ResourceID   string
}

// Ledger is the mutation and read surface for temporary access grants.
type Ledger struct {
	store GrantStore
	now   func() time.Time
}

// LedgerOption configures Ledger behavior.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the time source, useful in tests.
func WithLedgerClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a grant ledger over the given store.
func NewLedger(store GrantStore, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: grant store is required", ErrInvalidInput)
	}
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Grant issues a new temporary access grant. ExpiresAt must be
// strictly after the current instant.
func (l *Ledger) Grant(ctx context.Context, userID, region, grantedBy string, expiresAt time.Time, opts GrantOptions) (TemporaryAccessGrant, error) {
	userID = strings.TrimSpace(userID)
	region = strings.TrimSpace(region)
	grantedBy = strings.TrimSpace(grantedBy)
	if userID == "" || region == "" || grantedBy == "" {
		return TemporaryAccessGrant{}, fmt.Errorf("%w: user_id, region and granted_by are required", ErrInvalidInput)
	}
	now := l.now().UTC()
	if !expiresAt.After(now) {
		return TemporaryAccessGrant{}, fmt.Errorf("%w: expires_at %s is not after %s", ErrInvalidRange, expiresAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	grant := TemporaryAccessGrant{
		ID:           ids.New(),
		UserID:       userID,
		Region:       region,
		ResourceType: strings.TrimSpace(opts.ResourceType),
		ResourceID:   strings.TrimSpace(opts.ResourceID),
		GrantedBy:    grantedBy,
		GrantedAt:    now,
		ExpiresAt:    expiresAt.UTC(),
	}
	if err := l.store.CreateGrant(ctx, grant); err != nil {
		return TemporaryAccessGrant{}, err
	}
	return grant, nil
}

// Revoke terminates a grant. Revoking a grant that is already revoked
// or already expired is a no-op, not an error; only an unknown id
// fails.
func (l *Ledger) Revoke(ctx context.Context, grantID, revokedBy string) error {
	grantID = strings.TrimSpace(grantID)
	revokedBy = strings.TrimSpace(revokedBy)
	if grantID == "" || revokedBy == "" {
		return fmt.Errorf("%w: grant_id and revoked_by are required", ErrInvalidInput)
	}
	grant, err := l.store.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	now := l.now().UTC()
	if !grant.Active(now) {
		return nil
	}
	grant.RevokedAt = &now
	grant.RevokedBy = revokedBy
	return l.store.SaveGrant(ctx, grant)
}

// ActiveGrants returns the grants conferring access for the user at
// the given instant. This is the only read path used by region checks.
func (l *Ledger) ActiveGrants(ctx context.Context, userID string, asOf time.Time) ([]TemporaryAccessGrant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	grants, err := l.store.GrantsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := grants[:0:0]
	for _, g := range grants {
		if g.Active(asOf) {
			active = append(active, g)
		}
	}
	return active, nil
}

// GrantsForUser returns every grant issued to the user, active or not.
// Expired and revoked entries stay listed for housekeeping and display.
func (l *Ledger) GrantsForUser(ctx context.Context, userID string) ([]TemporaryAccessGrant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return l.store.GrantsForUser(ctx, userID)
}

// CanAccessRegion reports whether the profile may act inside the
// region: admins bypass, assigned regions always pass, and otherwise
// an active grant for this user and region is required.
func CanAccessRegion(profile Profile, grants []TemporaryAccessGrant, region string, now time.Time) bool {
	if profile.Role == RoleAdmin {
		return true
	}
	if profile.HasAssignedRegion(region) {
		return true
	}
	for _, g := range grants {
		if g.UserID == profile.UserID && g.Region == region && g.Active(now) {
			return true
		}
	}
	return false
}
