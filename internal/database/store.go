// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package database

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/tenantgate/tenantgate/internal/audit"
	"github.com/tenantgate/tenantgate/internal/models"
)

// Store is the persistence surface consumed by the authorization
// resolver and the API layer. *DB is the production implementation;
// MemoryStore backs tests.
type Store interface {
	// Tenant registry
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	ListTenants(ctx context.Context, activeOnly bool) ([]*models.Tenant, error)
	UpsertTenant(ctx context.Context, tenant *models.Tenant, actorID, actorName string) error
	UpdateTenantSettings(ctx context.Context, tenantID string, settings json.RawMessage, actorID, actorName string) error
	DeactivateTenant(ctx context.Context, tenantID, actorID, actorName string) error

	// Authority grants
	CreateGrant(ctx context.Context, rec *models.AuthorityRecord, actorID, actorName string) error
	RevokeGrant(ctx context.Context, tenantID, grantID, actorID, actorName string) error
	ListGrants(ctx context.Context, tenantID string) ([]*models.AuthorityRecord, error)
	SubjectGrants(ctx context.Context, tenantID, subjectID string) ([]*models.AuthorityRecord, error)
	RoleGrants(ctx context.Context, tenantID string) ([]*models.AuthorityRecord, error)

	// Access policies
	GetPolicy(ctx context.Context, tenantID string) (*models.AccessPolicy, error)
	SetPolicy(ctx context.Context, policy *models.AccessPolicy, actorID, actorName string) error

	// Audit trail
	QueryAudit(ctx context.Context, filter audit.QueryFilter) ([]*audit.Entry, error)

	Close() error
}

var _ Store = (*DB)(nil)
var _ Store = (*MemoryStore)(nil)
