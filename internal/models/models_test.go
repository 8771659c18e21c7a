// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package models

import (
	"testing"
	"time"
)

func TestTierOrdering(t *testing.T) {
	ordered := []Tier{
		TierNone,
		TierGenericMember,
		TierRoleGranted,
		TierExplicitUser,
		TierExplicitAdmin,
		TierOwner,
		TierPlatformAdmin,
		TierSystemIdentity,
	}

	for i := 1; i < len(ordered); i++ {
		if !(ordered[i] > ordered[i-1]) {
			t.Errorf("tier %v should outrank %v", ordered[i], ordered[i-1])
		}
	}
}

func TestTierAtLeast(t *testing.T) {
	if !TierOwner.AtLeast(TierExplicitAdmin) {
		t.Error("owner should satisfy an admin requirement")
	}
	if TierGenericMember.AtLeast(TierExplicitUser) {
		t.Error("member should not satisfy a user-grant requirement")
	}
	if !TierExplicitAdmin.AtLeast(TierExplicitAdmin) {
		t.Error("a tier satisfies itself")
	}
}

func TestTierRoundTrip(t *testing.T) {
	for _, tier := range []Tier{
		TierNone, TierGenericMember, TierRoleGranted, TierExplicitUser,
		TierExplicitAdmin, TierOwner, TierPlatformAdmin, TierSystemIdentity,
	} {
		if got := ParseTier(tier.String()); got != tier {
			t.Errorf("ParseTier(%q) = %v, want %v", tier.String(), got, tier)
		}
	}

	if got := ParseTier("bogus"); got != TierNone {
		t.Errorf("ParseTier(bogus) = %v, want none", got)
	}
}

func TestTierIsGrantable(t *testing.T) {
	for _, tier := range []Tier{TierExplicitAdmin, TierExplicitUser, TierRoleGranted, TierGenericMember} {
		if !tier.IsGrantable() {
			t.Errorf("%v should be grantable", tier)
		}
	}
	for _, tier := range []Tier{TierNone, TierOwner, TierPlatformAdmin, TierSystemIdentity} {
		if tier.IsGrantable() {
			t.Errorf("%v should not be grantable", tier)
		}
	}
}

func TestSnapshotFreshness(t *testing.T) {
	now := time.Now()
	snap := &MembershipSnapshot{ObservedAt: now.Add(-4 * time.Minute)}

	if !snap.FreshAt(now, 5*time.Minute) {
		t.Error("4-minute-old snapshot should be fresh under a 5-minute TTL")
	}
	if snap.FreshAt(now.Add(6*time.Minute), 5*time.Minute) {
		t.Error("10-minute-old snapshot should be stale under a 5-minute TTL")
	}

	var nilSnap *MembershipSnapshot
	if nilSnap.FreshAt(now, 5*time.Minute) {
		t.Error("nil snapshot is never fresh")
	}
}

func TestSnapshotHasAnyRole(t *testing.T) {
	snap := &MembershipSnapshot{Roles: []string{"r1", "r9"}}

	if !snap.HasAnyRole([]string{"r9"}) {
		t.Error("expected role intersection")
	}
	if snap.HasAnyRole([]string{"r2", "r3"}) {
		t.Error("expected no role intersection")
	}
	if snap.HasAnyRole(nil) {
		t.Error("empty want-set never intersects")
	}
}

func TestSubjectVariants(t *testing.T) {
	sys := SystemSubject()
	if !sys.IsSystem() {
		t.Error("system subject should report IsSystem")
	}
	if sys.Username() != "system" {
		t.Errorf("system username = %q, want system", sys.Username())
	}

	user := UserSubject("u1", &Profile{Username: "alice"})
	if user.IsSystem() {
		t.Error("user subject should not report IsSystem")
	}
	if user.ID != "u1" || user.Username() != "alice" {
		t.Errorf("unexpected user subject: %+v", user)
	}

	bare := UserSubject("u2", nil)
	if bare.Username() != "" {
		t.Errorf("profile-less username = %q, want empty", bare.Username())
	}
}
