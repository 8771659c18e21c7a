// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tenantgate/tenantgate/internal/audit"
	"github.com/tenantgate/tenantgate/internal/models"
)

// MemoryStore is an in-memory Store for tests and ephemeral
// deployments. Mutations and their audit entries commit atomically
// under one lock; a failing audit append leaves the mutation unapplied,
// matching the transactional behavior of the database-backed store.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]*models.Tenant
	grants   map[string]map[string]*models.AuthorityRecord // tenantID -> grantID
	policies map[string]*models.AccessPolicy
	entries  []*audit.Entry

	// AuditErr, when set, makes every audit append fail. Test hook for
	// verifying that mutations roll back with their audit entry.
	AuditErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*models.Tenant),
		grants:   make(map[string]map[string]*models.AuthorityRecord),
		policies: make(map[string]*models.AccessPolicy),
	}
}

func (s *MemoryStore) appendAudit(entry *audit.Entry) error {
	if s.AuditErr != nil {
		return s.AuditErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

// GetTenant returns a copy of the tenant or ErrTenantNotFound.
func (s *MemoryStore) GetTenant(_ context.Context, tenantID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *tenant
	return &cp, nil
}

// ListTenants returns tenants sorted by name.
func (s *MemoryStore) ListTenants(_ context.Context, activeOnly bool) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tenants []*models.Tenant
	for _, tenant := range s.tenants {
		if activeOnly && !tenant.Active {
			continue
		}
		cp := *tenant
		tenants = append(tenants, &cp)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

// UpsertTenant registers or updates a tenant.
func (s *MemoryStore) UpsertTenant(_ context.Context, tenant *models.Tenant, actorID, actorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.tenants[tenant.ID]

	var entry *audit.Entry
	next := *tenant
	next.UpdatedAt = now
	if ok {
		next.JoinedAt = existing.JoinedAt
		if next.Settings == nil {
			next.Settings = existing.Settings
		}
		entry = audit.NewEntry(tenant.ID, audit.ActionTenantUpdated, actorID, actorName, tenant.ID).
			WithDetail(map[string]string{"old_name": existing.Name, "new_name": tenant.Name})
	} else {
		if next.JoinedAt.IsZero() {
			next.JoinedAt = now
		}
		entry = audit.NewEntry(tenant.ID, audit.ActionTenantRegistered, actorID, actorName, tenant.ID).
			WithDetail(map[string]string{"name": tenant.Name})
	}

	if err := s.appendAudit(entry); err != nil {
		return err
	}
	s.tenants[tenant.ID] = &next
	*tenant = next
	return nil
}

// UpdateTenantSettings replaces the tenant's settings document.
func (s *MemoryStore) UpdateTenantSettings(_ context.Context, tenantID string, settings json.RawMessage, actorID, actorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}

	entry := audit.NewEntry(tenantID, audit.ActionSettingsUpdated, actorID, actorName, tenantID)
	if err := s.appendAudit(entry); err != nil {
		return err
	}
	tenant.Settings = settings
	tenant.UpdatedAt = time.Now().UTC()
	return nil
}

// DeactivateTenant marks the tenant inactive.
func (s *MemoryStore) DeactivateTenant(_ context.Context, tenantID, actorID, actorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}

	entry := audit.NewEntry(tenantID, audit.ActionTenantDeactivated, actorID, actorName, tenantID)
	if err := s.appendAudit(entry); err != nil {
		return err
	}
	tenant.Active = false
	tenant.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateGrant stores a new authority grant.
func (s *MemoryStore) CreateGrant(_ context.Context, rec *models.AuthorityRecord, actorID, actorName string) error {
	if !rec.Tier.IsGrantable() {
		return fmt.Errorf("tier %s is derived, not grantable", rec.Tier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.grants[rec.TenantID] {
		if existing.Tier != rec.Tier {
			continue
		}
		if rec.IsRoleKeyed() && existing.RoleID == rec.RoleID {
			return ErrGrantExists
		}
		if !rec.IsRoleKeyed() && existing.SubjectID != "" && existing.SubjectID == rec.SubjectID {
			return ErrGrantExists
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.CreatedBy = actorID

	entry := audit.NewEntry(rec.TenantID, audit.ActionGrantCreated, actorID, actorName, rec.SubjectID).
		WithDetail(map[string]string{"grant_id": rec.ID, "tier": rec.Tier.String(), "role_id": rec.RoleID})
	if err := s.appendAudit(entry); err != nil {
		return err
	}

	if s.grants[rec.TenantID] == nil {
		s.grants[rec.TenantID] = make(map[string]*models.AuthorityRecord)
	}
	cp := *rec
	s.grants[rec.TenantID][rec.ID] = &cp
	return nil
}

// RevokeGrant deletes a grant by ID.
func (s *MemoryStore) RevokeGrant(_ context.Context, tenantID, grantID, actorID, actorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.grants[tenantID][grantID]
	if !ok {
		return ErrGrantNotFound
	}

	entry := audit.NewEntry(tenantID, audit.ActionGrantRevoked, actorID, actorName, rec.SubjectID).
		WithDetail(map[string]string{"grant_id": rec.ID, "tier": rec.Tier.String(), "role_id": rec.RoleID})
	if err := s.appendAudit(entry); err != nil {
		return err
	}

	delete(s.grants[tenantID], grantID)
	return nil
}

// ListGrants returns all grants for a tenant, oldest first.
func (s *MemoryStore) ListGrants(_ context.Context, tenantID string) ([]*models.AuthorityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(tenantID, func(*models.AuthorityRecord) bool { return true }), nil
}

// SubjectGrants returns grants keyed directly to a subject.
func (s *MemoryStore) SubjectGrants(_ context.Context, tenantID, subjectID string) ([]*models.AuthorityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(tenantID, func(r *models.AuthorityRecord) bool {
		return !r.IsRoleKeyed() && r.SubjectID == subjectID
	}), nil
}

// RoleGrants returns role-keyed grants for a tenant.
func (s *MemoryStore) RoleGrants(_ context.Context, tenantID string) ([]*models.AuthorityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(tenantID, (*models.AuthorityRecord).IsRoleKeyed), nil
}

func (s *MemoryStore) collect(tenantID string, keep func(*models.AuthorityRecord) bool) []*models.AuthorityRecord {
	var grants []*models.AuthorityRecord
	for _, rec := range s.grants[tenantID] {
		if keep(rec) {
			cp := *rec
			grants = append(grants, &cp)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].CreatedAt.Before(grants[j].CreatedAt) })
	return grants
}

// GetPolicy returns the tenant's policy, or the zero policy when unset.
func (s *MemoryStore) GetPolicy(_ context.Context, tenantID string) (*models.AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[tenantID]
	if !ok {
		return &models.AccessPolicy{TenantID: tenantID}, nil
	}
	cp := *policy
	return &cp, nil
}

// SetPolicy replaces the tenant's access policy.
func (s *MemoryStore) SetPolicy(_ context.Context, policy *models.AccessPolicy, actorID, actorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy.UpdatedAt = time.Now().UTC()
	policy.UpdatedBy = actorID

	entry := audit.NewEntry(policy.TenantID, audit.ActionPolicyUpdated, actorID, actorName, policy.TenantID).
		WithDetail(map[string]interface{}{
			"new_allow_everyone": policy.AllowEveryone,
			"new_allowed_roles":  policy.AllowedRoleIDs,
		})
	if err := s.appendAudit(entry); err != nil {
		return err
	}

	cp := *policy
	s.policies[policy.TenantID] = &cp
	return nil
}

// QueryAudit returns matching entries, most recent first.
func (s *MemoryStore) QueryAudit(_ context.Context, filter audit.QueryFilter) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*audit.Entry
	for _, entry := range s.entries {
		if filter.TenantID != "" && entry.TenantID != filter.TenantID {
			continue
		}
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && entry.Timestamp.After(filter.Until) {
			continue
		}
		matched = append(matched, entry)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
