// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Tenant is a customer-owned workspace the platform manages.
type Tenant struct {
	// ID is the upstream tenant identifier.
	ID string `json:"id"`

	// Name is the human-readable tenant name.
	Name string `json:"name"`

	// IconURL is an optional display icon.
	IconURL string `json:"icon_url,omitempty"`

	// OwnerID is the subject ID of the tenant's recorded owner.
	OwnerID string `json:"owner_id"`

	// Settings is the tenant's free-form settings document.
	Settings json.RawMessage `json:"settings,omitempty"`

	// Active is false once the platform has left the tenant.
	Active bool `json:"active"`

	// JoinedAt is when the platform first saw the tenant.
	JoinedAt time.Time `json:"joined_at"`

	// UpdatedAt is the last mutation timestamp.
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthorityRecord is a persisted explicit grant of a tier within one tenant.
// It is keyed either on a subject ID or on an upstream role ID, never both.
type AuthorityRecord struct {
	// ID is the record's primary key.
	ID string `json:"id"`

	// TenantID scopes the grant to one tenant.
	TenantID string `json:"tenant_id"`

	// SubjectID is set for subject-keyed grants.
	SubjectID string `json:"subject_id,omitempty"`

	// RoleID is set for role-keyed grants.
	RoleID string `json:"role_id,omitempty"`

	// Tier is the granted tier. Must satisfy Tier.IsGrantable.
	Tier Tier `json:"tier"`

	// CreatedAt orders records for tie-breaking: when two role-keyed
	// records grant the same tier, the earlier one wins.
	CreatedAt time.Time `json:"created_at"`

	// CreatedBy is the subject that issued the grant.
	CreatedBy string `json:"created_by,omitempty"`
}

// IsRoleKeyed reports whether the record is keyed on a role rather than a
// specific subject.
func (r *AuthorityRecord) IsRoleKeyed() bool {
	return r.RoleID != ""
}

// AccessPolicy is a tenant's baseline access rule, consulted only after
// every explicit authority source has been exhausted.
type AccessPolicy struct {
	// TenantID scopes the policy to one tenant.
	TenantID string `json:"tenant_id"`

	// AllowEveryone grants member access to any confirmed tenant member.
	AllowEveryone bool `json:"allow_everyone"`

	// AllowedRoleIDs grants member access to subjects holding any of
	// these roles. Ignored when AllowEveryone is true.
	AllowedRoleIDs []string `json:"allowed_role_ids,omitempty"`

	// UpdatedAt is the last mutation timestamp.
	UpdatedAt time.Time `json:"updated_at"`

	// UpdatedBy is the subject that last changed the policy.
	UpdatedBy string `json:"updated_by,omitempty"`
}

// MembershipSnapshot is a cached result of an external membership lookup.
// Snapshots are overwritten on every successful lookup and served stale-read
// only within the freshness TTL when the external source is unreachable.
type MembershipSnapshot struct {
	// TenantID and SubjectID key the snapshot.
	TenantID  string `json:"tenant_id"`
	SubjectID string `json:"subject_id"`

	// Member records whether upstream confirmed membership at all. A
	// definitive not-a-member answer is cached too so degraded-mode
	// fallback cannot resurrect revoked membership.
	Member bool `json:"member"`

	// Roles the subject held in the tenant at observation time.
	Roles []string `json:"roles,omitempty"`

	// ObservedAt is when upstream answered. Snapshots never replace a
	// strictly newer observation.
	ObservedAt time.Time `json:"observed_at"`
}

// FreshAt reports whether the snapshot is within ttl as of now.
func (s *MembershipSnapshot) FreshAt(now time.Time, ttl time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.ObservedAt) < ttl
}

// HasAnyRole reports whether the snapshot's role set intersects roleIDs.
func (s *MembershipSnapshot) HasAnyRole(roleIDs []string) bool {
	if s == nil {
		return false
	}
	for _, want := range roleIDs {
		for _, have := range s.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}
