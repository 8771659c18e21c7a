// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tenantgate/tenantgate/internal/audit"
)

// appendAuditTx writes an audit entry inside the caller's transaction.
// An insert failure propagates, rolling the surrounding mutation back:
// a mutation whose audit entry cannot be written does not happen.
func (db *DB) appendAuditTx(ctx context.Context, tx *sql.Tx, entry *audit.Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, tenant_id, action, actor_id, actor_name, target_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.TenantID, string(entry.Action),
		entry.ActorID, nullable(entry.ActorName), nullable(entry.TargetID),
		detailText(entry.Detail))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns audit entries matching the filter, most recent
// first.
func (db *DB) QueryAudit(ctx context.Context, filter audit.QueryFilter) ([]*audit.Entry, error) {
	var conds []string
	var args []interface{}

	if filter.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.ActorID != "" {
		conds = append(conds, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(filter.Action))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, filter.Until)
	}

	query := `
		SELECT id, ts, tenant_id, action, actor_id,
		       CAST(actor_name AS TEXT), CAST(target_id AS TEXT), CAST(detail AS TEXT)
		FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry := &audit.Entry{}
		var action string
		var actorName, targetID, detail sql.NullString

		err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.TenantID, &action,
			&entry.ActorID, &actorName, &targetID, &detail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Action = audit.Action(action)
		if actorName.Valid {
			entry.ActorName = actorName.String
		}
		if targetID.Valid {
			entry.TargetID = targetID.String
		}
		if detail.Valid && detail.String != "" {
			entry.Detail = json.RawMessage(detail.String)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func detailText(detail json.RawMessage) interface{} {
	if len(detail) == 0 {
		return nil
	}
	return string(detail)
}
