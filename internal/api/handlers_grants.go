// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tenantgate/tenantgate/internal/audit"
	"github.com/tenantgate/tenantgate/internal/database"
	"github.com/tenantgate/tenantgate/internal/membership"
	"github.com/tenantgate/tenantgate/internal/models"
)

// GrantList returns the tenant's authority records. Admins and above.
func (h *Handlers) GrantList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	if _, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false); !ok {
		return
	}

	grants, err := h.store.ListGrants(r.Context(), tenantID)
	if err != nil {
		rw.ServiceUnavailable("Authority store unavailable")
		return
	}
	if grants == nil {
		grants = []*models.AuthorityRecord{}
	}
	rw.Success(grants)
}

// grantCreateRequest creates one authority record, keyed on exactly one
// of subject_id or role_id.
type grantCreateRequest struct {
	SubjectID string `json:"subject_id,omitempty" validate:"omitempty,snowflake"`
	RoleID    string `json:"role_id,omitempty" validate:"omitempty,snowflake"`
	Tier      string `json:"tier" validate:"required,tier"`
}

// GrantCreate adds an explicit grant. Admins and above.
func (h *Handlers) GrantCreate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	d, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false)
	if !ok {
		return
	}

	var req grantCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if (req.SubjectID == "") == (req.RoleID == "") {
		rw.BadRequest("Exactly one of subject_id or role_id is required")
		return
	}

	tier := models.ParseTier(req.Tier)
	if req.RoleID != "" && tier != models.TierRoleGranted {
		rw.BadRequest("Role-keyed grants must use the role tier")
		return
	}
	if req.SubjectID != "" && tier == models.TierRoleGranted {
		rw.BadRequest("The role tier requires a role-keyed grant")
		return
	}

	rec := &models.AuthorityRecord{
		TenantID:  tenantID,
		SubjectID: req.SubjectID,
		RoleID:    req.RoleID,
		Tier:      tier,
	}

	actorID, actorName := actor(d)
	if err := h.store.CreateGrant(r.Context(), rec, actorID, actorName); err != nil {
		if errors.Is(err, database.ErrGrantExists) {
			rw.Conflict("An equivalent grant already exists")
			return
		}
		rw.ServiceUnavailable("Authority store unavailable")
		return
	}
	rw.Created(rec)
}

// GrantRevoke removes a grant. Admins and above. An admin cannot revoke
// their own last admin grant: a tenant must not lock out its
// administrators by accident (the owner retains standing regardless).
func (h *Handlers) GrantRevoke(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")
	grantID := chi.URLParam(r, "grantID")

	d, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false)
	if !ok {
		return
	}

	grants, err := h.store.ListGrants(r.Context(), tenantID)
	if err != nil {
		rw.ServiceUnavailable("Authority store unavailable")
		return
	}

	var target *models.AuthorityRecord
	adminGrants := 0
	for _, g := range grants {
		if g.ID == grantID {
			target = g
		}
		if g.Tier == models.TierExplicitAdmin {
			adminGrants++
		}
	}
	if target == nil {
		rw.NotFound("Grant not found")
		return
	}

	actorID, actorName := actor(d)
	if target.Tier == models.TierExplicitAdmin && target.SubjectID == actorID && adminGrants == 1 {
		rw.Conflict("Cannot revoke your own last admin grant")
		return
	}

	if err := h.store.RevokeGrant(r.Context(), tenantID, grantID, actorID, actorName); err != nil {
		if errors.Is(err, database.ErrGrantNotFound) {
			rw.NotFound("Grant not found")
			return
		}
		rw.ServiceUnavailable("Authority store unavailable")
		return
	}
	rw.NoContent()
}

// PolicyGet returns the tenant's access policy. Admins and above.
func (h *Handlers) PolicyGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	if _, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false); !ok {
		return
	}

	policy, err := h.store.GetPolicy(r.Context(), tenantID)
	if err != nil {
		rw.ServiceUnavailable("Authority store unavailable")
		return
	}
	rw.Success(policy)
}

// policyUpdateRequest replaces the tenant's access policy.
type policyUpdateRequest struct {
	AllowEveryone  bool     `json:"allow_everyone"`
	AllowedRoleIDs []string `json:"allowed_role_ids" validate:"dive,snowflake"`
}

// PolicyUpdate replaces the access policy. Admins and above.
func (h *Handlers) PolicyUpdate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	d, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false)
	if !ok {
		return
	}

	var req policyUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	policy := &models.AccessPolicy{
		TenantID:       tenantID,
		AllowEveryone:  req.AllowEveryone,
		AllowedRoleIDs: req.AllowedRoleIDs,
	}

	actorID, actorName := actor(d)
	if err := h.store.SetPolicy(r.Context(), policy, actorID, actorName); err != nil {
		rw.ServiceUnavailable("Authority store unavailable")
		return
	}
	rw.Success(policy)
}

// AuditList returns the tenant's audit trail, most recent first.
// Admins and above.
func (h *Handlers) AuditList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	if _, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false); !ok {
		return
	}

	filter := audit.QueryFilter{
		TenantID: tenantID,
		ActorID:  r.URL.Query().Get("actor_id"),
		Action:   audit.Action(r.URL.Query().Get("action")),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	entries, err := h.store.QueryAudit(r.Context(), filter)
	if err != nil {
		rw.ServiceUnavailable("Audit store unavailable")
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	rw.Success(entries)
}

// RolesList proxies the tenant's role catalog from the membership
// service, for policy and grant configuration. Admins and above.
func (h *Handlers) RolesList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenantID := chi.URLParam(r, "tenantID")

	if _, ok := h.check(w, r, tenantID, models.TierExplicitAdmin, false); !ok {
		return
	}

	if h.roles == nil {
		rw.ServiceUnavailable("Role catalog not configured")
		return
	}

	roles, err := h.roles.ListRoles(r.Context(), tenantID)
	if err != nil {
		rw.ServiceUnavailable("Role catalog unavailable")
		return
	}
	if roles == nil {
		roles = []membership.Role{}
	}
	rw.Success(roles)
}
