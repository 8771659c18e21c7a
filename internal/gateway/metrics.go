// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checkTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tenantgate_gateway_checks_total",
	Help: "Authorization checks by outcome",
}, []string{"outcome"})

func observeCheck(outcome Outcome) {
	checkTotal.WithLabelValues(outcome.String()).Inc()
}
