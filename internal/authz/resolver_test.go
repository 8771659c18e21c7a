// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tenantgate/tenantgate/internal/config"
	"github.com/tenantgate/tenantgate/internal/database"
	"github.com/tenantgate/tenantgate/internal/membership"
	"github.com/tenantgate/tenantgate/internal/models"
)

// fakeMembership answers lookups from a fixed table, or fails every
// call with err.
type fakeMembership struct {
	members map[string]membership.Membership // "tenant/subject"
	err     error
	calls   int
}

func (f *fakeMembership) Lookup(_ context.Context, tenantID, subjectID string) (membership.Membership, error) {
	f.calls++
	if f.err != nil {
		return membership.Membership{}, f.err
	}
	return f.members[tenantID+"/"+subjectID], nil
}

func seedTenant(t *testing.T, store *database.MemoryStore, id, ownerID string) {
	t.Helper()
	tenant := &models.Tenant{ID: id, Name: "Tenant " + id, OwnerID: ownerID, Active: true}
	if err := store.UpsertTenant(context.Background(), tenant, "system:test", "test"); err != nil {
		t.Fatalf("seed tenant %s: %v", id, err)
	}
}

func seedGrant(t *testing.T, store *database.MemoryStore, rec *models.AuthorityRecord) {
	t.Helper()
	if err := store.CreateGrant(context.Background(), rec, "owner", "Owner"); err != nil {
		t.Fatalf("seed grant: %v", err)
	}
}

func seedPolicy(t *testing.T, store *database.MemoryStore, policy *models.AccessPolicy) {
	t.Helper()
	if err := store.SetPolicy(context.Background(), policy, "owner", "Owner"); err != nil {
		t.Fatalf("seed policy: %v", err)
	}
}

func TestResolveSystemIdentityBypassesEverything(t *testing.T) {
	r := NewResolver(database.NewMemoryStore(), &fakeMembership{err: membership.ErrUnavailable}, nil, 0)

	// No tenant exists, membership is down: system still resolves.
	tier, err := r.Resolve(context.Background(), models.SystemSubject(), "missing-tenant")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierSystemIdentity {
		t.Errorf("tier = %v, want TierSystemIdentity", tier)
	}
}

func TestResolveOwnerWithZeroRecords(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "u1")
	r := NewResolver(store, &fakeMembership{}, nil, 0)

	tier, err := r.Resolve(context.Background(), models.UserSubject("u1", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierOwner {
		t.Errorf("tier = %v, want TierOwner", tier)
	}
}

func TestResolveTenantNotFound(t *testing.T) {
	r := NewResolver(database.NewMemoryStore(), &fakeMembership{}, nil, 0)

	_, err := r.Resolve(context.Background(), models.UserSubject("u1", nil), "missing")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("Resolve() error = %v, want ErrTenantNotFound", err)
	}
}

func TestResolveExplicitAdminOutranksRoleGrant(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "owner-1")
	seedGrant(t, store, &models.AuthorityRecord{TenantID: "t1", SubjectID: "u2", Tier: models.TierExplicitAdmin})
	seedGrant(t, store, &models.AuthorityRecord{TenantID: "t1", RoleID: "r1", Tier: models.TierRoleGranted})

	provider := &fakeMembership{members: map[string]membership.Membership{
		"t1/u2": {Member: true, Roles: []string{"r1"}},
	}}
	r := NewResolver(store, provider, nil, 0)

	tier, err := r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierExplicitAdmin {
		t.Errorf("tier = %v, want TierExplicitAdmin", tier)
	}
	// The subject-keyed grant short-circuits before any membership call.
	if provider.calls != 0 {
		t.Errorf("membership calls = %d, want 0", provider.calls)
	}
}

func TestResolveRoleGrant(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "owner-1")
	seedGrant(t, store, &models.AuthorityRecord{TenantID: "t1", RoleID: "r-mod", Tier: models.TierExplicitUser})

	provider := &fakeMembership{members: map[string]membership.Membership{
		"t1/u2": {Member: true, Roles: []string{"r-mod", "r-other"}},
	}}
	r := NewResolver(store, provider, nil, 0)

	tier, err := r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierExplicitUser {
		t.Errorf("tier = %v, want TierExplicitUser", tier)
	}
}

func TestResolveRestrictedPolicy(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "u1")
	seedPolicy(t, store, &models.AccessPolicy{TenantID: "t1", AllowEveryone: false, AllowedRoleIDs: []string{"r9"}})

	provider := &fakeMembership{members: map[string]membership.Membership{
		"t1/u2": {Member: true, Roles: []string{"r9"}},
		"t1/u3": {Member: true, Roles: []string{"r1"}},
	}}
	r := NewResolver(store, provider, nil, 0)

	tier, err := r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve(u2) error = %v", err)
	}
	if tier != models.TierGenericMember {
		t.Errorf("u2 tier = %v, want TierGenericMember", tier)
	}

	tier, err = r.Resolve(context.Background(), models.UserSubject("u3", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve(u3) error = %v", err)
	}
	if tier != models.TierNone {
		t.Errorf("u3 tier = %v, want TierNone", tier)
	}
}

func TestResolveAllowEveryoneRequiresMembership(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "u1")
	seedPolicy(t, store, &models.AccessPolicy{TenantID: "t1", AllowEveryone: true})

	provider := &fakeMembership{members: map[string]membership.Membership{
		"t1/u2": {Member: true},
		// u3 absent: definitive non-member.
	}}
	r := NewResolver(store, provider, nil, 0)

	tier, _ := r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1")
	if tier != models.TierGenericMember {
		t.Errorf("member tier = %v, want TierGenericMember", tier)
	}
	tier, _ = r.Resolve(context.Background(), models.UserSubject("u3", nil), "t1")
	if tier != models.TierNone {
		t.Errorf("non-member tier = %v, want TierNone", tier)
	}
}

func TestResolveDegradedSnapshotFallback(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "u1")
	seedPolicy(t, store, &models.AccessPolicy{TenantID: "t1", AllowEveryone: true})

	now := time.Now()
	provider := &fakeMembership{err: membership.ErrUnavailable}
	r := NewResolver(store, provider, nil, 5*time.Minute)
	r.now = func() time.Time { return now }

	// Snapshot observed 4 minutes ago: inside the 5 minute TTL.
	r.snapshots.Observe("t1", "u2", true, nil, now.Add(-4*time.Minute))
	tier, err := r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierGenericMember {
		t.Errorf("fresh snapshot tier = %v, want TierGenericMember", tier)
	}

	// The same snapshot aged 10 minutes: stale, deny.
	r.now = func() time.Time { return now.Add(6 * time.Minute) }
	tier, err = r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve() stale error = %v", err)
	}
	if tier != models.TierNone {
		t.Errorf("stale snapshot tier = %v, want TierNone", tier)
	}

	// No snapshot at all: deny.
	tier, _ = r.Resolve(context.Background(), models.UserSubject("u9", nil), "t1")
	if tier != models.TierNone {
		t.Errorf("no snapshot tier = %v, want TierNone", tier)
	}
}

func TestResolveDegradedNeverAssumesRoles(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "u1")
	seedGrant(t, store, &models.AuthorityRecord{TenantID: "t1", RoleID: "r9", Tier: models.TierExplicitUser})
	seedPolicy(t, store, &models.AccessPolicy{TenantID: "t1", AllowEveryone: false, AllowedRoleIDs: []string{"r9"}})

	now := time.Now()
	provider := &fakeMembership{err: membership.ErrRateLimited}
	r := NewResolver(store, provider, nil, 5*time.Minute)
	r.now = func() time.Time { return now }

	// Even a fresh snapshot proving the role cannot stand in for a live
	// answer when the policy is role-restricted.
	r.snapshots.Observe("t1", "u2", true, []string{"r9"}, now.Add(-1*time.Minute))

	tier, err := r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierNone {
		t.Errorf("tier = %v, want TierNone", tier)
	}
}

func TestResolveGrantRemovalFallsThrough(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "u1")
	rec := &models.AuthorityRecord{TenantID: "t1", SubjectID: "u4", Tier: models.TierExplicitAdmin}
	seedGrant(t, store, rec)

	provider := &fakeMembership{members: map[string]membership.Membership{}}
	r := NewResolver(store, provider, nil, 0)
	ctx := context.Background()

	tier, _ := r.Resolve(ctx, models.UserSubject("u4", nil), "t1")
	if tier != models.TierExplicitAdmin {
		t.Fatalf("tier before revoke = %v, want TierExplicitAdmin", tier)
	}

	if err := store.RevokeGrant(ctx, "t1", rec.ID, "u1", "Owner"); err != nil {
		t.Fatalf("RevokeGrant() error = %v", err)
	}

	tier, _ = r.Resolve(ctx, models.UserSubject("u4", nil), "t1")
	if tier != models.TierNone {
		t.Errorf("tier after revoke = %v, want TierNone (no residual standing)", tier)
	}
}

func TestPlatformAdmin(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "control", "boss")
	seedTenant(t, store, "t1", "u1")

	platform := &config.PlatformConfig{
		AdminIDs:        []string{"listed-admin"},
		ControlTenantID: "control",
		AdminRoleID:     "r-staff",
	}
	provider := &fakeMembership{members: map[string]membership.Membership{
		"control/staffer": {Member: true, Roles: []string{"r-staff"}},
		"control/civilian": {Member: true, Roles: []string{"r-none"}},
	}}
	r := NewResolver(store, provider, platform, 0)
	ctx := context.Background()

	cases := []struct {
		name    string
		subject string
		want    models.Tier
	}{
		{"allow-listed", "listed-admin", models.TierPlatformAdmin},
		{"control tenant owner", "boss", models.TierPlatformAdmin},
		{"holds admin role", "staffer", models.TierPlatformAdmin},
		{"ordinary member of control", "civilian", models.TierNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tier, err := r.Resolve(ctx, models.UserSubject(tc.subject, nil), "t1")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if tier != tc.want {
				t.Errorf("tier = %v, want %v", tier, tc.want)
			}
		})
	}

	// Platform admin outranks the tenant's own owner.
	tier, err := r.Resolve(ctx, models.UserSubject("listed-admin", nil), "control")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierPlatformAdmin {
		t.Errorf("tier = %v, want TierPlatformAdmin", tier)
	}
}

func TestPlatformAdminLookupFailureIsNotAdmin(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "control", "boss")
	seedTenant(t, store, "t1", "u1")

	platform := &config.PlatformConfig{ControlTenantID: "control", AdminRoleID: "r-staff"}
	provider := &fakeMembership{err: membership.ErrUnavailable}
	r := NewResolver(store, provider, platform, 0)

	tier, err := r.Resolve(context.Background(), models.UserSubject("maybe-staff", nil), "t1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tier != models.TierNone {
		t.Errorf("tier = %v, want TierNone when admin check cannot complete", tier)
	}
}

func TestSnapshotCacheMonotonic(t *testing.T) {
	cache := NewSnapshotCache()
	now := time.Now()

	cache.Observe("t1", "u1", true, []string{"r1"}, now)
	cache.Observe("t1", "u1", false, nil, now.Add(-time.Minute))

	got := cache.Get("t1", "u1")
	if got == nil || !got.Member {
		t.Errorf("older observation overwrote newer: %+v", got)
	}

	cache.Observe("t1", "u1", false, nil, now.Add(time.Minute))
	got = cache.Get("t1", "u1")
	if got == nil || got.Member {
		t.Errorf("newer observation did not replace: %+v", got)
	}
}

func TestSnapshotCachePrune(t *testing.T) {
	cache := NewSnapshotCache()
	now := time.Now()

	cache.Observe("t1", "u1", true, nil, now.Add(-time.Hour))
	cache.Observe("t1", "u2", true, nil, now)

	if removed := cache.Prune(now.Add(-time.Minute)); removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
	if cache.Get("t1", "u1") != nil {
		t.Error("stale snapshot survived prune")
	}
	if cache.Get("t1", "u2") == nil {
		t.Error("fresh snapshot removed by prune")
	}
}

func TestResolveSuccessfulLookupRefreshesSnapshot(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "t1", "u1")
	seedPolicy(t, store, &models.AccessPolicy{TenantID: "t1", AllowEveryone: true})

	provider := &fakeMembership{members: map[string]membership.Membership{
		"t1/u2": {Member: true, Roles: []string{"r1"}},
	}}
	r := NewResolver(store, provider, nil, 5*time.Minute)

	if _, err := r.Resolve(context.Background(), models.UserSubject("u2", nil), "t1"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	snap := r.snapshots.Get("t1", "u2")
	if snap == nil || !snap.Member || len(snap.Roles) != 1 {
		t.Errorf("snapshot after live lookup = %+v, want member with roles", snap)
	}
}
