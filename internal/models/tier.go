// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

/*
tier.go - Permission Tier Model

This file defines the total-ordered permission scale used by every
authorization decision in the system.

Tier Order (highest to lowest):
  - system: service-to-service identity, bypasses all tenant checks
  - platform_admin: operator of the whole platform
  - owner: the tenant's recorded owner
  - admin: explicit per-tenant admin grant
  - user: explicit per-tenant user grant
  - role: grant keyed on an upstream role the subject holds
  - member: generic access through the tenant's access policy
  - none: no access

The order is fixed at compile time and is never derived from data.
*/

package models

// Tier is one point on the total-ordered permission scale.
type Tier int

const (
	// TierNone means no rule matched; callers must deny.
	TierNone Tier = iota

	// TierGenericMember is granted through the tenant's access policy.
	TierGenericMember

	// TierRoleGranted is granted through a role-keyed authority record.
	TierRoleGranted

	// TierExplicitUser is an explicit subject-keyed user grant.
	TierExplicitUser

	// TierExplicitAdmin is an explicit subject-keyed admin grant.
	TierExplicitAdmin

	// TierOwner is the tenant's recorded owner.
	TierOwner

	// TierPlatformAdmin is a platform-wide operator. Outranks every
	// tenant's own owner.
	TierPlatformAdmin

	// TierSystemIdentity is a trusted service credential. Bypasses all
	// further checks.
	TierSystemIdentity
)

// tierNames maps tiers to their wire representation.
var tierNames = map[Tier]string{
	TierNone:           "none",
	TierGenericMember:  "member",
	TierRoleGranted:    "role",
	TierExplicitUser:   "user",
	TierExplicitAdmin:  "admin",
	TierOwner:          "owner",
	TierPlatformAdmin:  "platform_admin",
	TierSystemIdentity: "system",
}

// String returns the wire representation of the tier.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "none"
}

// AtLeast reports whether t grants at least the required tier.
func (t Tier) AtLeast(required Tier) bool {
	return t >= required
}

// ParseTier converts a wire representation back to a Tier.
// Unknown values parse as TierNone.
func ParseTier(s string) Tier {
	for tier, name := range tierNames {
		if name == s {
			return tier
		}
	}
	return TierNone
}

// GrantableTiers are the tiers an authority record may carry. Member
// standing comes from the access policy, and system, platform-admin,
// and owner standing are derived, so none of them persist as records.
var GrantableTiers = []Tier{TierExplicitAdmin, TierExplicitUser, TierRoleGranted}

// IsGrantable reports whether the tier may be stored in an authority record.
func (t Tier) IsGrantable() bool {
	for _, g := range GrantableTiers {
		if t == g {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	*t = ParseTier(string(b))
	return nil
}
