// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package main is the entry point for the Tenantgate server.
//
// Tenantgate sits between a hosted platform's upstream identity
// provider and its per-tenant surfaces. It owns two concerns:
//
//   - Session lifecycle: OAuth authorization-code login, encrypted
//     credential storage, and race-free refresh of expiring tokens.
//   - Permission resolution: a per-tenant tier derived from ownership,
//     explicit grants, role grants, access policy, and platform
//     operator standing, degrading gracefully when the upstream
//     membership service is unreachable.
//
// # Initialization order
//
//  1. Configuration: Koanf v2 layering of defaults, config.yaml, and
//     environment variables.
//  2. Audit mirror and DuckDB authority store.
//  3. Session store: in-memory or BadgerDB with encrypted bundles.
//  4. Identity and membership providers, registered by name.
//  5. Resolver, gateway, and the chi HTTP surface.
//  6. Supervisor tree: HTTP server and session sweeper under suture.
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the server stops
// accepting connections, in-flight requests get the configured
// shutdown timeout, then stores are closed in reverse order.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenantgate/tenantgate/internal/api"
	"github.com/tenantgate/tenantgate/internal/audit"
	"github.com/tenantgate/tenantgate/internal/authz"
	"github.com/tenantgate/tenantgate/internal/config"
	"github.com/tenantgate/tenantgate/internal/database"
	"github.com/tenantgate/tenantgate/internal/gateway"
	"github.com/tenantgate/tenantgate/internal/identity"
	"github.com/tenantgate/tenantgate/internal/logging"
	"github.com/tenantgate/tenantgate/internal/membership"
	"github.com/tenantgate/tenantgate/internal/session"
	"github.com/tenantgate/tenantgate/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("session_backend", cfg.Sessions.Backend).
		Msg("Starting Tenantgate")

	// Audit entries persist in the mutation's own transaction; the
	// mirror only echoes them to the log.
	mirror := audit.NewMirror(256)
	defer mirror.Close()

	db, err := database.New(&cfg.Database, mirror)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authority store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing authority store")
		}
	}()

	sessions, closeSessions, err := buildSessionStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	defer closeSessions()

	// Providers register by name so alternate implementations can be
	// selected from configuration.
	registry := gateway.NewRegistry()
	registry.RegisterIdentity(cfg.Identity.Provider, identity.NewOAuthClient(&cfg.Identity, cfg.Server.Timeout))
	membershipClient := membership.NewHTTPClient(&cfg.Membership)
	registry.RegisterMembership(cfg.Membership.Provider, membership.NewBreakerProvider(membershipClient))

	idp, err := registry.Identity(cfg.Identity.Provider)
	if err != nil {
		logging.Fatal().Err(err).Msg("Unknown identity provider")
	}
	members, err := registry.Membership(cfg.Membership.Provider)
	if err != nil {
		logging.Fatal().Err(err).Msg("Unknown membership provider")
	}

	refresher := session.NewRefresher(sessions, idp, session.RefresherConfig{
		Margin:            cfg.Sessions.RefreshMargin,
		LockTTL:           cfg.Sessions.LockTTL,
		LockRetries:       cfg.Sessions.LockRetries,
		LockRetryInterval: cfg.Sessions.LockRetryInterval,
		RefreshTimeout:    cfg.Sessions.RefreshTimeout,
	})

	verifier, err := identity.NewSystemVerifier(cfg.Security.SystemSecret, cfg.Security.SystemTokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid system secret")
	}
	if verifier == nil {
		logging.Warn().Msg("System secret not configured: system identity endpoints are disabled")
	}

	resolver := authz.NewResolver(db, members, &cfg.Platform, cfg.Membership.SnapshotTTL)
	gw := gateway.New(sessions, refresher, verifier, resolver)

	handlers := api.NewHandlers(cfg, gw, resolver, sessions, db, idp, membershipClient)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, handlers).Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.AddMaintenanceService(supervisor.NewSweeperService(sessions, cfg.Sessions.CleanupInterval))
	tree.AddMaintenanceService(supervisor.NewSnapshotPruneService(resolver, cfg.Sessions.CleanupInterval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Server listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", fmt.Sprintf("%v", svc.Service)).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("Shutdown complete")
}

// buildSessionStore selects the configured session backend. The badger
// backend encrypts credential bundles at rest when an encryption key is
// configured.
func buildSessionStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Sessions.Backend {
	case "badger":
		cipher, err := session.NewBundleCipher(cfg.Sessions.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("session encryption key: %w", err)
		}
		if cipher == nil {
			logging.Warn().Msg("Session encryption key not configured: credential bundles stored in the clear")
		}
		db, err := session.OpenBadger(cfg.Sessions.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing session store")
			}
		}
		return session.NewBadgerStore(db, cipher), closer, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}
