// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package authz

import (
	"sync"
	"time"

	"github.com/tenantgate/tenantgate/internal/models"
)

// SnapshotCache holds the last observed membership answer per
// (tenant, subject). Snapshots are only superseded by a newer
// observation or pruned once stale; a concurrent writer with an older
// observation can never roll a newer one back.
type SnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey]*models.MembershipSnapshot
}

type snapshotKey struct {
	tenantID  string
	subjectID string
}

// NewSnapshotCache returns an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{snapshots: make(map[snapshotKey]*models.MembershipSnapshot)}
}

// Get returns the cached snapshot for (tenantID, subjectID), or nil.
func (c *SnapshotCache) Get(tenantID, subjectID string) *models.MembershipSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshots[snapshotKey{tenantID, subjectID}]
}

// Put stores a snapshot unless a strictly newer observation is already
// cached.
func (c *SnapshotCache) Put(snapshot *models.MembershipSnapshot) {
	key := snapshotKey{snapshot.TenantID, snapshot.SubjectID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.snapshots[key]; ok && existing.ObservedAt.After(snapshot.ObservedAt) {
		return
	}
	c.snapshots[key] = snapshot
}

// Observe records a live lookup result as a snapshot.
func (c *SnapshotCache) Observe(tenantID, subjectID string, member bool, roles []string, at time.Time) {
	c.Put(&models.MembershipSnapshot{
		TenantID:   tenantID,
		SubjectID:  subjectID,
		Member:     member,
		Roles:      roles,
		ObservedAt: at,
	})
}

// Prune drops snapshots observed before the cutoff and reports how
// many were removed. Stale snapshots are never served, so pruning only
// reclaims memory.
func (c *SnapshotCache) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, snapshot := range c.snapshots {
		if snapshot.ObservedAt.Before(cutoff) {
			delete(c.snapshots, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
