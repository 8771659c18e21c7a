// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tenantgate/tenantgate/internal/models"
)

var (
	resolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantgate_authz_resolutions_total",
		Help: "Permission resolutions by resulting tier",
	}, []string{"tier"})

	membershipDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantgate_authz_membership_degraded_total",
		Help: "Resolutions that ran without a live membership answer",
	})

	staleServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantgate_authz_stale_snapshot_served_total",
		Help: "Degraded resolutions admitted on a fresh-enough cached snapshot",
	})

	staleDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantgate_authz_degraded_denied_total",
		Help: "Degraded resolutions denied for lack of a usable snapshot",
	})
)

func observeResolution(tier models.Tier) {
	resolutionTotal.WithLabelValues(tier.String()).Inc()
}
