// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tenantgate/tenantgate/internal/database"
	"github.com/tenantgate/tenantgate/internal/gateway"
	"github.com/tenantgate/tenantgate/internal/logging"
	"github.com/tenantgate/tenantgate/internal/models"
)

// tenantSummary is the list/detail payload. Settings are omitted from
// listings.
type tenantSummary struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	IconURL string      `json:"icon_url,omitempty"`
	OwnerID string      `json:"owner_id"`
	Active  bool        `json:"active"`
	Tier    models.Tier `json:"tier"`
}

// TenantList returns the tenants the caller can access. Platform
// operators see everything; ordinary subjects see each tenant their
// resolved tier admits, evaluated with the same degradation rules as a
// single-tenant check.
func (h *Handlers) TenantList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subject, _, outcome := h.gateway.Subject(r.Context(), h.token(r))
	if outcome != gateway.OutcomeAllowed {
		h.writeDenial(w, r, outcome)
		return
	}

	platformTier := h.resolver.PlatformTier(r.Context(), subject)

	tenants, err := h.store.ListTenants(r.Context(), true)
	if err != nil {
		rw.ServiceUnavailable("Tenant store unavailable")
		return
	}

	visible := make([]tenantSummary, 0, len(tenants))
	for _, tenant := range tenants {
		tier := platformTier
		if tier < models.TierPlatformAdmin {
			tier, err = h.resolver.Resolve(r.Context(), subject, tenant.ID)
			if err != nil {
				// Skip tenants the store cannot answer for rather than
				// failing the whole listing.
				logging.Warn().Err(err).Str("tenant_id", tenant.ID).Msg("Listing resolution failed")
				continue
			}
		}
		if tier == models.TierNone {
			continue
		}
		visible = append(visible, tenantSummary{
			ID:      tenant.ID,
			Name:    tenant.Name,
			IconURL: tenant.IconURL,
			OwnerID: tenant.OwnerID,
			Active:  tenant.Active,
			Tier:    tier,
		})
	}

	rw.Success(visible)
}

// TenantGet is the top-level probe boundary: non-members receive 404,
// never 403, so tenant existence cannot be confirmed by outsiders.
func (h *Handlers) TenantGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	d, ok := h.check(w, r, tenantID, models.TierGenericMember, true)
	if !ok {
		return
	}

	tenant, err := h.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, database.ErrTenantNotFound) {
			rw.NotFound("Tenant not found")
			return
		}
		rw.ServiceUnavailable("Tenant store unavailable")
		return
	}

	rw.Success(tenantSummary{
		ID:      tenant.ID,
		Name:    tenant.Name,
		IconURL: tenant.IconURL,
		OwnerID: tenant.OwnerID,
		Active:  tenant.Active,
		Tier:    d.Tier,
	})
}

// tenantUpsertRequest is the system sync payload.
type tenantUpsertRequest struct {
	ID       string          `json:"id" validate:"required,snowflake"`
	Name     string          `json:"name" validate:"required,max=200"`
	IconURL  string          `json:"icon_url,omitempty" validate:"omitempty,url"`
	OwnerID  string          `json:"owner_id" validate:"required,snowflake"`
	Active   *bool           `json:"active,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// TenantUpsert registers or updates a tenant. Reserved for the trusted
// system identity: the sync worker mirrors upstream tenant state
// through this endpoint.
func (h *Handlers) TenantUpsert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	d, ok := h.check(w, r, "", models.TierSystemIdentity, false)
	if !ok {
		return
	}

	var req tenantUpsertRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	tenant := &models.Tenant{
		ID:       req.ID,
		Name:     req.Name,
		IconURL:  req.IconURL,
		OwnerID:  req.OwnerID,
		Settings: req.Settings,
		Active:   active,
	}

	actorID, actorName := actor(d)
	if err := h.store.UpsertTenant(r.Context(), tenant, actorID, actorName); err != nil {
		rw.ServiceUnavailable("Tenant store unavailable")
		return
	}
	rw.Success(tenant)
}

// TenantDeactivate marks a tenant inactive when the platform leaves it.
// System identity only, like upsert.
func (h *Handlers) TenantDeactivate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	d, ok := h.check(w, r, "", models.TierSystemIdentity, false)
	if !ok {
		return
	}

	actorID, actorName := actor(d)
	if err := h.store.DeactivateTenant(r.Context(), tenantID, actorID, actorName); err != nil {
		if errors.Is(err, database.ErrTenantNotFound) {
			rw.NotFound("Tenant not found")
			return
		}
		rw.ServiceUnavailable("Tenant store unavailable")
		return
	}
	rw.NoContent()
}

// SettingsGet returns the tenant's settings document. Members only;
// this is a nested resource, so denials are an honest 403.
func (h *Handlers) SettingsGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	if _, ok := h.check(w, r, tenantID, models.TierGenericMember, false); !ok {
		return
	}

	tenant, err := h.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		rw.ServiceUnavailable("Tenant store unavailable")
		return
	}

	settings := tenant.Settings
	if len(settings) == 0 {
		settings = json.RawMessage("{}")
	}
	rw.Success(settings)
}

// SettingsUpdate replaces the settings document. Admins and above.
func (h *Handlers) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	d, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		rw.BadRequest("Settings must be a valid JSON document")
		return
	}

	actorID, actorName := actor(d)
	if err := h.store.UpdateTenantSettings(r.Context(), tenantID, body, actorID, actorName); err != nil {
		if errors.Is(err, database.ErrTenantNotFound) {
			rw.NotFound("Tenant not found")
			return
		}
		rw.ServiceUnavailable("Tenant store unavailable")
		return
	}
	rw.Success(json.RawMessage(body))
}
