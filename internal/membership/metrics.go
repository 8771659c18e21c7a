// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package membership

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lookupTotal counts membership lookups.
	// Labels:
	//   - outcome: "member", "non_member", "rate_limited", "failure",
	//     "rejected" (circuit open)
	lookupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_lookups_total",
			Help: "Total number of membership service lookups",
		},
		[]string{"outcome"},
	)

	// breakerState exposes the membership circuit breaker state.
	// 0 = closed, 1 = half-open, 2 = open.
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "membership_circuit_breaker_state",
			Help: "Membership circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)
)
