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

	"github.com/google/uuid"

	"github.com/tenantgate/tenantgate/internal/audit"
	"github.com/tenantgate/tenantgate/internal/models"
)

// scanAuthorityRow scans a row into an AuthorityRecord.
func scanAuthorityRow(scanner interface{ Scan(dest ...interface{}) error }) (*models.AuthorityRecord, error) {
	rec := &models.AuthorityRecord{}
	var subjectID, roleID sql.NullString
	var tier string

	err := scanner.Scan(&rec.ID, &rec.TenantID, &subjectID, &roleID, &tier, &rec.CreatedAt, &rec.CreatedBy)
	if err != nil {
		return nil, err
	}

	if subjectID.Valid {
		rec.SubjectID = subjectID.String
	}
	if roleID.Valid {
		rec.RoleID = roleID.String
	}

	rec.Tier = models.ParseTier(tier)
	return rec, nil
}

// CreateGrant stores a new authority grant with its audit entry in one
// transaction. An equivalent existing grant (same tenant, same key,
// same tier) returns ErrGrantExists.
func (db *DB) CreateGrant(ctx context.Context, rec *models.AuthorityRecord, actorID, actorName string) error {
	if !rec.Tier.IsGrantable() {
		return fmt.Errorf("tier %s is derived, not grantable", rec.Tier)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.CreatedBy = actorID

	entry := audit.NewEntry(rec.TenantID, audit.ActionGrantCreated, actorID, actorName, rec.SubjectID).
		WithDetail(map[string]string{
			"grant_id": rec.ID,
			"tier":     rec.Tier.String(),
			"role_id":  rec.RoleID,
		})

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		// Duplicate detection keys on whichever identity the grant uses.
		var count int
		var err error
		if rec.IsRoleKeyed() {
			err = tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM authority_records
				WHERE tenant_id = ? AND role_id = ? AND tier = ?`,
				rec.TenantID, rec.RoleID, rec.Tier.String()).Scan(&count)
		} else {
			err = tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM authority_records
				WHERE tenant_id = ? AND subject_id = ? AND tier = ?`,
				rec.TenantID, rec.SubjectID, rec.Tier.String()).Scan(&count)
		}
		if err != nil {
			return fmt.Errorf("check existing grant: %w", err)
		}
		if count > 0 {
			return ErrGrantExists
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO authority_records (id, tenant_id, subject_id, role_id, tier, created_at, created_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.TenantID, nullable(rec.SubjectID), nullable(rec.RoleID),
			rec.Tier.String(), rec.CreatedAt, rec.CreatedBy)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}

		return db.appendAuditTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	db.recordMirror(entry)
	return nil
}

// RevokeGrant deletes a grant by ID, with its audit entry in the same
// transaction. Returns ErrGrantNotFound when no such grant exists in
// the tenant.
func (db *DB) RevokeGrant(ctx context.Context, tenantID, grantID, actorID, actorName string) error {
	existing, err := db.getGrant(ctx, tenantID, grantID)
	if err != nil {
		return err
	}

	entry := audit.NewEntry(tenantID, audit.ActionGrantRevoked, actorID, actorName, existing.SubjectID).
		WithDetail(map[string]string{
			"grant_id": existing.ID,
			"tier":     existing.Tier.String(),
			"role_id":  existing.RoleID,
		})

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM authority_records WHERE tenant_id = ? AND id = ?`,
			tenantID, grantID)
		if err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrGrantNotFound
		}

		return db.appendAuditTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	db.recordMirror(entry)
	return nil
}

// getGrant fetches a single grant scoped to a tenant.
func (db *DB) getGrant(ctx context.Context, tenantID, grantID string) (*models.AuthorityRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, subject_id, role_id, tier, created_at, created_by
		FROM authority_records
		WHERE tenant_id = ? AND id = ?`,
		tenantID, grantID)

	rec, err := scanAuthorityRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to query grant: %w", err)
	}
	return rec, nil
}

// ListGrants returns all grants for a tenant, highest tier first and
// oldest first within a tier.
func (db *DB) ListGrants(ctx context.Context, tenantID string) ([]*models.AuthorityRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, tenant_id, subject_id, role_id, tier, created_at, created_by
		FROM authority_records
		WHERE tenant_id = ?
		ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	return collectGrants(rows)
}

// SubjectGrants returns the grants keyed directly to a subject in a
// tenant. Role-keyed grants are resolved separately against the
// subject's live roles.
func (db *DB) SubjectGrants(ctx context.Context, tenantID, subjectID string) ([]*models.AuthorityRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, tenant_id, subject_id, role_id, tier, created_at, created_by
		FROM authority_records
		WHERE tenant_id = ? AND subject_id = ?
		ORDER BY created_at`,
		tenantID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subject grants: %w", err)
	}
	defer rows.Close()

	return collectGrants(rows)
}

// RoleGrants returns the role-keyed grants for a tenant.
func (db *DB) RoleGrants(ctx context.Context, tenantID string) ([]*models.AuthorityRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, tenant_id, subject_id, role_id, tier, created_at, created_by
		FROM authority_records
		WHERE tenant_id = ? AND role_id IS NOT NULL AND role_id != ''
		ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role grants: %w", err)
	}
	defer rows.Close()

	return collectGrants(rows)
}

func collectGrants(rows *sql.Rows) ([]*models.AuthorityRecord, error) {
	var grants []*models.AuthorityRecord
	for rows.Next() {
		rec, err := scanAuthorityRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, rec)
	}
	return grants, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
