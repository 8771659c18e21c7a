// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package supervisor

import (
	"context"
	"time"

	"github.com/tenantgate/tenantgate/internal/logging"
)

// SnapshotPruner is implemented by the permission resolver.
type SnapshotPruner interface {
	PruneSnapshots() int
}

// SnapshotPruneService periodically drops stale membership snapshots
// from the resolver's cache.
type SnapshotPruneService struct {
	pruner   SnapshotPruner
	interval time.Duration
}

// NewSnapshotPruneService creates a pruner over the resolver.
func NewSnapshotPruneService(pruner SnapshotPruner, interval time.Duration) *SnapshotPruneService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SnapshotPruneService{pruner: pruner, interval: interval}
}

// Serve implements suture.Service.
func (s *SnapshotPruneService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.pruner.PruneSnapshots(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Stale membership snapshots pruned")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *SnapshotPruneService) String() string { return "snapshot-pruner" }
