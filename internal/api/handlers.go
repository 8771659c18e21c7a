// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package api

import (
	"net/http"
	"strings"

	"github.com/tenantgate/tenantgate/internal/authz"
	"github.com/tenantgate/tenantgate/internal/config"
	"github.com/tenantgate/tenantgate/internal/database"
	"github.com/tenantgate/tenantgate/internal/gateway"
	"github.com/tenantgate/tenantgate/internal/identity"
	"github.com/tenantgate/tenantgate/internal/membership"
	"github.com/tenantgate/tenantgate/internal/models"
	"github.com/tenantgate/tenantgate/internal/session"
)

// Handlers carries the dependencies every endpoint needs. Built once at
// startup and shared across requests.
type Handlers struct {
	cfg      *config.Config
	gateway  *gateway.Gateway
	resolver *authz.Resolver
	sessions session.Store
	store    database.Store
	idp      identity.Provider

	// roles is non-nil when the membership provider can enumerate a
	// tenant's role catalog.
	roles membership.RoleLister
}

// NewHandlers builds the handler set. roles may be nil.
func NewHandlers(cfg *config.Config, gw *gateway.Gateway, resolver *authz.Resolver, sessions session.Store, store database.Store, idp identity.Provider, roles membership.RoleLister) *Handlers {
	return &Handlers{
		cfg:      cfg,
		gateway:  gw,
		resolver: resolver,
		sessions: sessions,
		store:    store,
		idp:      idp,
		roles:    roles,
	}
}

// token extracts the caller's credential: an Authorization bearer token
// wins over the session cookie.
func (h *Handlers) token(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return t
		}
	}
	if cookie, err := r.Cookie(h.cfg.Sessions.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// check runs the gateway and writes the failure response when the
// operation is denied. Returns the decision and whether to proceed.
func (h *Handlers) check(w http.ResponseWriter, r *http.Request, tenantID string, required models.Tier, conceal bool) (gateway.Decision, bool) {
	d := h.gateway.Check(r.Context(), gateway.CheckRequest{
		Token:    h.token(r),
		TenantID: tenantID,
		Required: required,
		Conceal:  conceal,
	})
	if d.Outcome == gateway.OutcomeAllowed {
		return d, true
	}
	h.writeDenial(w, r, d.Outcome)
	return d, false
}

// writeDenial maps a gateway outcome onto transport semantics.
func (h *Handlers) writeDenial(w http.ResponseWriter, r *http.Request, outcome gateway.Outcome) {
	rw := NewResponseWriter(w, r)
	switch outcome {
	case gateway.OutcomeUnauthenticated:
		rw.Unauthorized("Authentication required")
	case gateway.OutcomeForbidden:
		rw.Forbidden("Insufficient permissions")
	case gateway.OutcomeTenantNotFound:
		rw.NotFound("Tenant not found")
	case gateway.OutcomeUnavailable:
		rw.ServiceUnavailable("Authorization temporarily unavailable")
	default:
		rw.InternalError("Unexpected authorization outcome")
	}
}

// actor names the caller for audit entries.
func actor(d gateway.Decision) (id, name string) {
	if d.Subject.IsSystem() {
		return "system", "system"
	}
	return d.Subject.ID, d.Subject.Username()
}
