// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// droppedEntries counts mirror entries dropped under backpressure.
// The persisted trail is unaffected; only the log echo is lossy.
var droppedEntries = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "audit_mirror_dropped_total",
		Help: "Total number of audit log mirror entries dropped under backpressure",
	},
)
