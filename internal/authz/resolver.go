// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package authz computes the effective permission tier for a
// (subject, tenant) pair by walking a fixed precedence chain of
// authority sources, degrading gracefully when the external membership
// service is unreachable.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tenantgate/tenantgate/internal/config"
	"github.com/tenantgate/tenantgate/internal/database"
	"github.com/tenantgate/tenantgate/internal/logging"
	"github.com/tenantgate/tenantgate/internal/membership"
	"github.com/tenantgate/tenantgate/internal/models"
)

// ErrTenantNotFound re-exports the store's not-found answer so callers
// need not import the database package to branch on it.
var ErrTenantNotFound = database.ErrTenantNotFound

// ErrUnavailable indicates the authority store itself failed. Callers
// must fail closed: an infrastructure outage never grants access.
var ErrUnavailable = errors.New("authz: authority store unavailable")

// DefaultSnapshotTTL bounds how old a cached membership observation may
// be and still count during degraded-mode resolution.
const DefaultSnapshotTTL = 5 * time.Minute

// Resolver computes permission tiers. Resolution is deterministic for
// identical inputs and identical external state within the snapshot TTL.
type Resolver struct {
	store      database.Store
	membership membership.Provider
	snapshots  *SnapshotCache

	adminIDs        map[string]struct{}
	controlTenantID string
	adminRoleID     string
	snapshotTTL     time.Duration

	now func() time.Time
}

// NewResolver builds a resolver over the given authority store and
// membership provider. platform may be nil when the deployment has no
// platform operators configured.
func NewResolver(store database.Store, provider membership.Provider, platform *config.PlatformConfig, snapshotTTL time.Duration) *Resolver {
	r := &Resolver{
		store:       store,
		membership:  provider,
		snapshots:   NewSnapshotCache(),
		adminIDs:    make(map[string]struct{}),
		snapshotTTL: snapshotTTL,
		now:         time.Now,
	}
	if r.snapshotTTL <= 0 {
		r.snapshotTTL = DefaultSnapshotTTL
	}
	if platform != nil {
		for _, id := range platform.AdminIDs {
			r.adminIDs[id] = struct{}{}
		}
		r.controlTenantID = platform.ControlTenantID
		r.adminRoleID = platform.AdminRoleID
	}
	return r
}

// Resolve walks the precedence chain and returns the subject's
// effective tier in the tenant. The only errors are ErrTenantNotFound
// and ErrUnavailable; membership-service failures are absorbed into the
// decision per the degraded-mode rules and never surface here.
func (r *Resolver) Resolve(ctx context.Context, subject models.Subject, tenantID string) (models.Tier, error) {
	// A system credential bypasses every tenant-level check, including
	// tenant existence.
	if subject.IsSystem() {
		observeResolution(models.TierSystemIdentity)
		return models.TierSystemIdentity, nil
	}

	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, database.ErrTenantNotFound) {
			return models.TierNone, ErrTenantNotFound
		}
		return models.TierNone, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if r.isPlatformAdmin(ctx, subject.ID) {
		observeResolution(models.TierPlatformAdmin)
		return models.TierPlatformAdmin, nil
	}

	if tenant.OwnerID != "" && tenant.OwnerID == subject.ID {
		observeResolution(models.TierOwner)
		return models.TierOwner, nil
	}

	// Explicit subject-keyed grants.
	if tier, ok, err := r.subjectGrantTier(ctx, tenantID, subject.ID); err != nil {
		return models.TierNone, err
	} else if ok {
		observeResolution(tier)
		return tier, nil
	}

	// The remaining sources all need the subject's membership. One
	// lookup serves both the role-keyed grants and the access policy.
	state := r.lookupMembership(ctx, tenantID, subject.ID)

	if state.live {
		if tier, ok, err := r.roleGrantTier(ctx, tenantID, state.roles); err != nil {
			return models.TierNone, err
		} else if ok {
			observeResolution(tier)
			return tier, nil
		}
	}
	// A failed lookup skips role-keyed grants entirely: role membership
	// is never assumed.

	tier, err := r.policyTier(ctx, tenantID, state)
	if err != nil {
		return models.TierNone, err
	}
	observeResolution(tier)
	return tier, nil
}

// PlatformTier resolves the subject's tenant-independent standing:
// SystemIdentity, PlatformAdmin, or None. Used by operations that are
// not scoped to one tenant, such as the full tenant listing.
func (r *Resolver) PlatformTier(ctx context.Context, subject models.Subject) models.Tier {
	if subject.IsSystem() {
		return models.TierSystemIdentity
	}
	if r.isPlatformAdmin(ctx, subject.ID) {
		return models.TierPlatformAdmin
	}
	return models.TierNone
}

// PruneSnapshots drops membership snapshots older than the snapshot
// TTL and reports how many were removed. Stale snapshots never serve a
// decision; pruning reclaims memory for churned subjects.
func (r *Resolver) PruneSnapshots() int {
	return r.snapshots.Prune(r.now().Add(-r.snapshotTTL))
}

// membershipState is the outcome of one membership lookup attempt.
type membershipState struct {
	// live is true when the external service answered.
	live   bool
	member bool
	roles  []string

	// snapshot is the cached prior observation, set only when the live
	// lookup failed.
	snapshot *models.MembershipSnapshot
}

// lookupMembership asks the external service and records the answer as
// a snapshot. On failure it degrades to whatever snapshot is cached;
// the caller decides what a stale answer is allowed to prove.
func (r *Resolver) lookupMembership(ctx context.Context, tenantID, subjectID string) membershipState {
	m, err := r.membership.Lookup(ctx, tenantID, subjectID)
	if err == nil {
		r.snapshots.Observe(tenantID, subjectID, m.Member, m.Roles, r.now())
		return membershipState{live: true, member: m.Member, roles: m.Roles}
	}

	logging.Warn().
		Err(err).
		Str("tenant_id", tenantID).
		Str("subject_id", subjectID).
		Msg("Membership lookup failed, resolving in degraded mode")
	membershipDegraded.Inc()

	return membershipState{snapshot: r.snapshots.Get(tenantID, subjectID)}
}

// subjectGrantTier returns the highest tier among grants keyed directly
// on the subject, tie-broken by earliest creation.
func (r *Resolver) subjectGrantTier(ctx context.Context, tenantID, subjectID string) (models.Tier, bool, error) {
	grants, err := r.store.SubjectGrants(ctx, tenantID, subjectID)
	if err != nil {
		return models.TierNone, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return bestTier(grants), len(grants) > 0, nil
}

// roleGrantTier returns the highest tier among role-keyed grants whose
// role the subject holds.
func (r *Resolver) roleGrantTier(ctx context.Context, tenantID string, roles []string) (models.Tier, bool, error) {
	if len(roles) == 0 {
		return models.TierNone, false, nil
	}
	grants, err := r.store.RoleGrants(ctx, tenantID)
	if err != nil {
		return models.TierNone, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	held := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		held[role] = struct{}{}
	}
	var matched []*models.AuthorityRecord
	for _, grant := range grants {
		if _, ok := held[grant.RoleID]; ok {
			matched = append(matched, grant)
		}
	}
	return bestTier(matched), len(matched) > 0, nil
}

// policyTier evaluates the tenant's access policy, the last rung of the
// chain. Degraded-mode rules:
//   - allowEveryone: a snapshot younger than the TTL may stand in for a
//     live answer; no snapshot, or a stale one, denies.
//   - restricted role lists always require a live answer.
func (r *Resolver) policyTier(ctx context.Context, tenantID string, state membershipState) (models.Tier, error) {
	policy, err := r.store.GetPolicy(ctx, tenantID)
	if err != nil {
		return models.TierNone, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if policy.AllowEveryone {
		if state.live {
			if state.member {
				return models.TierGenericMember, nil
			}
			return models.TierNone, nil
		}
		if state.snapshot.FreshAt(r.now(), r.snapshotTTL) && state.snapshot.Member {
			staleServed.Inc()
			return models.TierGenericMember, nil
		}
		staleDenied.Inc()
		return models.TierNone, nil
	}

	if len(policy.AllowedRoleIDs) == 0 {
		return models.TierNone, nil
	}
	if !state.live {
		staleDenied.Inc()
		return models.TierNone, nil
	}
	for _, allowed := range policy.AllowedRoleIDs {
		for _, held := range state.roles {
			if allowed == held {
				return models.TierGenericMember, nil
			}
		}
	}
	return models.TierNone, nil
}

// isPlatformAdmin checks the allow-list, then control-tenant ownership,
// then the designated admin role in the control tenant. Any failure on
// the way means "not a platform admin", never an error: platform-admin
// standing is a privilege the chain falls through, not a gate.
func (r *Resolver) isPlatformAdmin(ctx context.Context, subjectID string) bool {
	if subjectID == "" {
		return false
	}
	if _, ok := r.adminIDs[subjectID]; ok {
		return true
	}
	if r.controlTenantID == "" {
		return false
	}

	control, err := r.store.GetTenant(ctx, r.controlTenantID)
	if err == nil && control.OwnerID == subjectID {
		return true
	}

	if r.adminRoleID == "" {
		return false
	}
	m, err := r.membership.Lookup(ctx, r.controlTenantID, subjectID)
	if err != nil {
		return false
	}
	r.snapshots.Observe(r.controlTenantID, subjectID, m.Member, m.Roles, r.now())
	return m.HasRole(r.adminRoleID)
}

// bestTier picks the highest tier, tie-broken by earliest CreatedAt.
// Records are expected oldest-first, so the first record at the winning
// tier is the winner.
func bestTier(grants []*models.AuthorityRecord) models.Tier {
	best := models.TierNone
	for _, grant := range grants {
		if grant.Tier > best {
			best = grant.Tier
		}
	}
	return best
}
