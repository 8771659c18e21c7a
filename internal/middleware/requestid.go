// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package middleware holds transport-level middleware shared by every
// route: request identification and Prometheus instrumentation.
package middleware

import (
	"net/http"

	"github.com/tenantgate/tenantgate/internal/logging"
)

// RequestID tags each request with a unique ID, reusing an upstream
// proxy's X-Request-ID when present. The ID rides the context so every
// log line and error response for the request can carry it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
