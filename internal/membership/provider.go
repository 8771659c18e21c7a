// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package membership resolves a subject's live membership and roles in a
// tenant via the external membership service.
package membership

import (
	"context"
	"errors"
)

// Provider errors. A subject that simply is not a member is NOT an
// error: Lookup answers that definitively with Member=false.
var (
	// ErrRateLimited indicates the membership service throttled us.
	ErrRateLimited = errors.New("membership: rate limited")

	// ErrUnavailable indicates the membership service could not be
	// reached or answered with a server error.
	ErrUnavailable = errors.New("membership: service unavailable")
)

// Membership is a definitive answer about a subject's standing in a
// tenant at lookup time.
type Membership struct {
	// Member reports whether the subject belongs to the tenant.
	Member bool `json:"member"`

	// Roles are the subject's role IDs in the tenant. Empty when the
	// subject is not a member.
	Roles []string `json:"roles"`
}

// HasRole reports whether the membership carries the given role ID.
func (m Membership) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Role is one entry in a tenant's role catalog.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoleLister is implemented by providers that can enumerate a tenant's
// role catalog. Optional: resolution never needs it, only the admin UI.
type RoleLister interface {
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
}

// Provider is the external membership service contract.
type Provider interface {
	// Lookup resolves the subject's membership in a tenant.
	// A non-member answer is (Membership{Member: false}, nil); errors
	// mean the question could not be answered at all.
	Lookup(ctx context.Context, tenantID, subjectID string) (Membership, error)
}
