// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package supervisor

import (
	"context"
	"time"

	"github.com/tenantgate/tenantgate/internal/logging"
	"github.com/tenantgate/tenantgate/internal/session"
)

// SweeperService periodically removes expired sessions from the store.
// Expiry is also enforced on read, so the sweeper only reclaims space;
// a missed sweep never extends a session's life.
type SweeperService struct {
	store    session.Store
	interval time.Duration
}

// NewSweeperService creates a sweeper over the session store.
func NewSweeperService(store session.Store, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweeperService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.store.CleanupExpired(ctx)
			if err != nil {
				logging.Warn().Err(err).Msg("Session cleanup failed")
				continue
			}
			if removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Expired sessions cleaned up")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *SweeperService) String() string { return "session-sweeper" }
