// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// refreshSuccesses counts completed credential refreshes.
	refreshSuccesses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_refresh_success_total",
			Help: "Total number of successful credential refreshes",
		},
	)

	// refreshFailures counts failed credential refreshes.
	// Labels:
	//   - reason: "permanent" (grant dead, session terminated),
	//     "transient" (provider unavailable, stale credentials served)
	refreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_failure_total",
			Help: "Total number of failed credential refreshes",
		},
		[]string{"reason"},
	)

	// lockContention counts callers that lost the refresh lock race and
	// waited for another refresher's result.
	lockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_refresh_lock_contention_total",
			Help: "Total number of refresh attempts that waited on another refresher",
		},
	)

	// SessionsCreated counts sessions established after login.
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	// SessionsDeleted counts sessions removed.
	// Labels:
	//   - reason: "logout", "expired", "dead_grant"
	SessionsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_deleted_total",
			Help: "Total number of sessions deleted",
		},
		[]string{"reason"},
	)
)
