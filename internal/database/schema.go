// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package database

import (
	"context"
	"fmt"
	"time"
)

// createTables creates the schema if it does not exist.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			icon_url   TEXT,
			owner_id   TEXT NOT NULL,
			settings   TEXT,
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			joined_at  TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS authority_records (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			subject_id TEXT,
			role_id    TEXT,
			tier       TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			created_by TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS access_policies (
			tenant_id        TEXT PRIMARY KEY,
			allow_everyone   BOOLEAN NOT NULL DEFAULT FALSE,
			allowed_role_ids TEXT,
			updated_at       TIMESTAMP NOT NULL,
			updated_by       TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id         TEXT PRIMARY KEY,
			ts         TIMESTAMP NOT NULL,
			tenant_id  TEXT NOT NULL,
			action     TEXT NOT NULL,
			actor_id   TEXT NOT NULL,
			actor_name TEXT,
			target_id  TEXT,
			detail     TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_authority_tenant ON authority_records (tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_authority_subject ON authority_records (tenant_id, subject_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant_ts ON audit_log (tenant_id, ts)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
