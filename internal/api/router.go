// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenantgate/tenantgate/internal/config"
	"github.com/tenantgate/tenantgate/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	cfg     *config.Config
	handler *Handlers
}

// NewRouter creates a router over the handler set.
func NewRouter(cfg *config.Config, handler *Handlers) *Router {
	return &Router{cfg: cfg, handler: handler}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.corsHandler())

	r.Handle("/metrics", promhttp.Handler())

	// Health gets a permissive limit so monitors can poll freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByRealIP(1000, time.Minute))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Authentication endpoints carry a strict limit: they hit the
	// upstream identity provider and are the brute-force surface.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(httprate.LimitByRealIP(30, time.Minute))
		r.Use(middleware.Prometheus("/api/v1/auth"))

		r.Get("/login", router.handler.Login)
		r.Get("/callback", router.handler.Callback)
		r.Post("/logout", router.handler.Logout)
		r.Get("/me", router.handler.Me)
	})

	// Tenant-scoped endpoints. Authorization happens per handler via
	// the gateway; the router only shapes routes and limits.
	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(middleware.Prometheus("/api/v1/tenants"))

		r.Get("/", router.handler.TenantList)
		r.Post("/", router.handler.TenantUpsert)

		r.Route("/{tenantID}", func(r chi.Router) {
			r.Get("/", router.handler.TenantGet)
			r.Delete("/", router.handler.TenantDeactivate)

			r.Get("/settings", router.handler.SettingsGet)
			r.Put("/settings", router.handler.SettingsUpdate)

			r.Get("/grants", router.handler.GrantList)
			r.Post("/grants", router.handler.GrantCreate)
			r.Delete("/grants/{grantID}", router.handler.GrantRevoke)

			r.Get("/policy", router.handler.PolicyGet)
			r.Put("/policy", router.handler.PolicyUpdate)

			r.Get("/audit", router.handler.AuditList)
			r.Get("/roles", router.handler.RolesList)
		})
	})

	return r
}

// corsHandler builds the CORS middleware from configuration. Origins
// default to empty: cross-origin access requires explicit opt-in.
func (router *Router) corsHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}

func (router *Router) rateLimit() func(http.Handler) http.Handler {
	requests := router.cfg.Server.RateLimitReqs
	if requests <= 0 {
		requests = 100
	}
	window := router.cfg.Server.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.LimitByRealIP(requests, window)
}
