// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package audit defines the audit trail for authority mutations.
// Entries are persisted in the same database transaction as the
// mutation they describe; this package holds the model and a structured
// log mirror.
package audit

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Action categorizes audit entries.
type Action string

const (
	// Authority grant lifecycle
	ActionGrantCreated Action = "grant.created"
	ActionGrantRevoked Action = "grant.revoked"

	// Access policy changes
	ActionPolicyUpdated Action = "policy.updated"

	// Tenant lifecycle
	ActionTenantRegistered  Action = "tenant.registered"
	ActionTenantUpdated     Action = "tenant.updated"
	ActionTenantDeactivated Action = "tenant.deactivated"
	ActionSettingsUpdated   Action = "tenant.settings_updated"
)

// Entry is one audit record. An entry always belongs to a tenant and
// names the actor who performed the mutation.
type Entry struct {
	// ID is a unique identifier for this entry.
	ID string `json:"id"`

	// Timestamp when the mutation occurred.
	Timestamp time.Time `json:"timestamp"`

	// TenantID scopes the entry.
	TenantID string `json:"tenant_id"`

	// Action categorizes the mutation.
	Action Action `json:"action"`

	// ActorID and ActorName identify who performed the mutation.
	// System actors carry a "system:" prefix.
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`

	// TargetID identifies the mutated object: a subject ID for grants,
	// the tenant ID for policy and settings changes.
	TargetID string `json:"target_id,omitempty"`

	// Detail carries action-specific fields (old and new values).
	Detail json.RawMessage `json:"detail,omitempty"`
}

// NewEntry builds an entry with a fresh ID and UTC timestamp.
func NewEntry(tenantID string, action Action, actorID, actorName, targetID string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Action:    action,
		ActorID:   actorID,
		ActorName: actorName,
		TargetID:  targetID,
	}
}

// WithDetail attaches action-specific fields; marshal failures leave
// Detail empty rather than failing the mutation.
func (e *Entry) WithDetail(v interface{}) *Entry {
	if data, err := json.Marshal(v); err == nil {
		e.Detail = data
	}
	return e
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	// TenantID scopes the query; required for tenant-level listings.
	TenantID string

	// ActorID filters by actor.
	ActorID string

	// Action filters by action.
	Action Action

	// Since and Until bound the time range.
	Since time.Time
	Until time.Time

	// Limit and Offset page the results; recent entries come first.
	Limit  int
	Offset int
}
