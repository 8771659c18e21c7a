// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package gateway

import (
	"fmt"

	"github.com/tenantgate/tenantgate/internal/identity"
	"github.com/tenantgate/tenantgate/internal/membership"
)

// Registry holds the named upstream integrations. It is built once at
// process start and passed by reference into the gateway; nothing in
// the request path reaches for a package-level singleton.
type Registry struct {
	identity   map[string]identity.Provider
	membership map[string]membership.Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		identity:   make(map[string]identity.Provider),
		membership: make(map[string]membership.Provider),
	}
}

// RegisterIdentity adds a named identity provider. Registration happens
// during startup only; the registry is read-only afterwards.
func (r *Registry) RegisterIdentity(name string, provider identity.Provider) {
	r.identity[name] = provider
}

// RegisterMembership adds a named membership provider.
func (r *Registry) RegisterMembership(name string, provider membership.Provider) {
	r.membership[name] = provider
}

// Identity returns the named identity provider.
func (r *Registry) Identity(name string) (identity.Provider, error) {
	p, ok := r.identity[name]
	if !ok {
		return nil, fmt.Errorf("unknown identity provider %q", name)
	}
	return p, nil
}

// Membership returns the named membership provider.
func (r *Registry) Membership(name string) (membership.Provider, error) {
	p, ok := r.membership[name]
	if !ok {
		return nil, fmt.Errorf("unknown membership provider %q", name)
	}
	return p, nil
}
