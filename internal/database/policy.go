// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tenantgate/tenantgate/internal/audit"
	"github.com/tenantgate/tenantgate/internal/models"
)

// GetPolicy returns the tenant's access policy. A tenant that has never
// set one gets the zero policy: nobody admitted through generic
// membership.
func (db *DB) GetPolicy(ctx context.Context, tenantID string) (*models.AccessPolicy, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT tenant_id, allow_everyone, CAST(allowed_role_ids AS TEXT), updated_at, CAST(updated_by AS TEXT)
		FROM access_policies
		WHERE tenant_id = ?`,
		tenantID)

	policy := &models.AccessPolicy{}
	var roleIDs, updatedBy sql.NullString

	err := row.Scan(&policy.TenantID, &policy.AllowEveryone, &roleIDs, &policy.UpdatedAt, &updatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.AccessPolicy{TenantID: tenantID}, nil
		}
		return nil, fmt.Errorf("failed to query access policy: %w", err)
	}

	if roleIDs.Valid && roleIDs.String != "" {
		if err := json.Unmarshal([]byte(roleIDs.String), &policy.AllowedRoleIDs); err != nil {
			return nil, fmt.Errorf("corrupt allowed_role_ids for tenant %s: %w", tenantID, err)
		}
	}
	if updatedBy.Valid {
		policy.UpdatedBy = updatedBy.String
	}
	return policy, nil
}

// SetPolicy replaces the tenant's access policy, auditing the change in
// the same transaction.
func (db *DB) SetPolicy(ctx context.Context, policy *models.AccessPolicy, actorID, actorName string) error {
	old, err := db.GetPolicy(ctx, policy.TenantID)
	if err != nil {
		return err
	}

	policy.UpdatedAt = time.Now().UTC()
	policy.UpdatedBy = actorID

	roleIDs, err := json.Marshal(policy.AllowedRoleIDs)
	if err != nil {
		return fmt.Errorf("marshal allowed_role_ids: %w", err)
	}

	entry := audit.NewEntry(policy.TenantID, audit.ActionPolicyUpdated, actorID, actorName, policy.TenantID).
		WithDetail(map[string]interface{}{
			"old_allow_everyone": old.AllowEveryone,
			"old_allowed_roles":  old.AllowedRoleIDs,
			"new_allow_everyone": policy.AllowEveryone,
			"new_allowed_roles":  policy.AllowedRoleIDs,
		})

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_policies (tenant_id, allow_everyone, allowed_role_ids, updated_at, updated_by)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id) DO UPDATE SET
				allow_everyone = EXCLUDED.allow_everyone,
				allowed_role_ids = EXCLUDED.allowed_role_ids,
				updated_at = EXCLUDED.updated_at,
				updated_by = EXCLUDED.updated_by`,
			policy.TenantID, policy.AllowEveryone, string(roleIDs),
			policy.UpdatedAt, policy.UpdatedBy)
		if err != nil {
			return fmt.Errorf("upsert access policy: %w", err)
		}

		return db.appendAuditTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	db.recordMirror(entry)
	return nil
}
