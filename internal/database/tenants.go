// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tenantgate/tenantgate/internal/audit"
	"github.com/tenantgate/tenantgate/internal/models"
)

// scanTenantRow scans a row into a Tenant, handling nullable fields.
func scanTenantRow(scanner interface{ Scan(dest ...interface{}) error }) (*models.Tenant, error) {
	t := &models.Tenant{}
	var iconURL, settings sql.NullString

	err := scanner.Scan(&t.ID, &t.Name, &iconURL, &t.OwnerID, &settings,
		&t.Active, &t.JoinedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if iconURL.Valid {
		t.IconURL = iconURL.String
	}
	if settings.Valid && settings.String != "" {
		t.Settings = json.RawMessage(settings.String)
	}
	return t, nil
}

// GetTenant retrieves a tenant by ID.
// Returns ErrTenantNotFound if the tenant is not registered.
func (db *DB) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	query := `
		SELECT id, name, icon_url, owner_id, CAST(settings AS TEXT), active, joined_at, updated_at
		FROM tenants
		WHERE id = ?
	`

	row := db.conn.QueryRowContext(ctx, query, id)
	tenant, err := scanTenantRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}
	return tenant, nil
}

// ListTenants returns registered tenants, optionally only active ones.
func (db *DB) ListTenants(ctx context.Context, activeOnly bool) ([]*models.Tenant, error) {
	query := `
		SELECT id, name, icon_url, owner_id, CAST(settings AS TEXT), active, joined_at, updated_at
		FROM tenants
	`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenantRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// UpsertTenant registers a tenant or refreshes its metadata. The audit
// entry commits in the same transaction as the write.
func (db *DB) UpsertTenant(ctx context.Context, tenant *models.Tenant, actorID, actorName string) error {
	now := time.Now().UTC()
	if tenant.JoinedAt.IsZero() {
		tenant.JoinedAt = now
	}
	tenant.UpdatedAt = now

	existing, err := db.GetTenant(ctx, tenant.ID)
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return err
	}

	var entry *audit.Entry
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if existing == nil {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tenants (id, name, icon_url, owner_id, settings, active, joined_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				tenant.ID, tenant.Name, tenant.IconURL, tenant.OwnerID,
				settingsText(tenant.Settings), tenant.Active, tenant.JoinedAt, tenant.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert tenant: %w", err)
			}
			entry = audit.NewEntry(tenant.ID, audit.ActionTenantRegistered, actorID, actorName, tenant.ID)
		} else {
			_, err := tx.ExecContext(ctx, `
				UPDATE tenants
				SET name = ?, icon_url = ?, owner_id = ?, active = ?, updated_at = ?
				WHERE id = ?`,
				tenant.Name, tenant.IconURL, tenant.OwnerID, tenant.Active, tenant.UpdatedAt, tenant.ID)
			if err != nil {
				return fmt.Errorf("update tenant: %w", err)
			}
			tenant.JoinedAt = existing.JoinedAt
			tenant.Settings = existing.Settings
			entry = audit.NewEntry(tenant.ID, audit.ActionTenantUpdated, actorID, actorName, tenant.ID).
				WithDetail(map[string]string{"old_name": existing.Name, "new_name": tenant.Name})
		}

		return db.appendAuditTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	db.recordMirror(entry)
	return nil
}

// UpdateTenantSettings replaces a tenant's settings document.
// Returns ErrTenantNotFound when the tenant is not registered.
func (db *DB) UpdateTenantSettings(ctx context.Context, tenantID string, settings json.RawMessage, actorID, actorName string) error {
	entry := audit.NewEntry(tenantID, audit.ActionSettingsUpdated, actorID, actorName, tenantID)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tenants SET settings = ?, updated_at = ? WHERE id = ?`,
			settingsText(settings), time.Now().UTC(), tenantID)
		if err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrTenantNotFound
		}

		return db.appendAuditTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	db.recordMirror(entry)
	return nil
}

// DeactivateTenant marks a tenant inactive without deleting its records.
func (db *DB) DeactivateTenant(ctx context.Context, tenantID, actorID, actorName string) error {
	entry := audit.NewEntry(tenantID, audit.ActionTenantDeactivated, actorID, actorName, tenantID)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tenants SET active = FALSE, updated_at = ? WHERE id = ?`,
			time.Now().UTC(), tenantID)
		if err != nil {
			return fmt.Errorf("deactivate tenant: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrTenantNotFound
		}

		return db.appendAuditTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	db.recordMirror(entry)
	return nil
}

// settingsText converts a raw settings document to a nullable TEXT value.
func settingsText(settings json.RawMessage) interface{} {
	if len(settings) == 0 {
		return nil
	}
	return string(settings)
}
