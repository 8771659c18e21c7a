// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package api

import (
	"context"
	"net/http"
	"time"
)

// pinger is implemented by stores with a connectivity probe.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthLive reports process liveness. Always healthy while the
// process can serve requests at all.
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady reports readiness: the authority store must answer.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if p, ok := h.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			rw.ServiceUnavailable("Authority store not ready")
			return
		}
	}

	rw.Success(map[string]string{"status": "ready"})
}
