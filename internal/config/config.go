// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package config loads and validates service configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. Environment always wins.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the service.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Sessions   SessionsConfig   `koanf:"sessions"`
	Identity   IdentityConfig   `koanf:"identity"`
	Membership MembershipConfig `koanf:"membership"`
	Platform   PlatformConfig   `koanf:"platform"`
	Security   SecurityConfig   `koanf:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	Environment     string        `koanf:"environment" validate:"oneof=development production"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings for tenant and audit persistence.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// SessionsConfig holds session store and credential refresh settings.
type SessionsConfig struct {
	// Backend selects the store implementation: memory or badger.
	Backend string `koanf:"backend" validate:"oneof=memory badger"`

	// BadgerPath is the on-disk location for the badger backend.
	BadgerPath string `koanf:"badger_path"`

	// TTL is the session lifetime from creation or last extension.
	TTL time.Duration `koanf:"ttl"`

	// RefreshMargin is the safety margin before credential expiry at
	// which a refresh is attempted.
	RefreshMargin time.Duration `koanf:"refresh_margin"`

	// LockTTL bounds how long a crashed refresher can hold the
	// per-token refresh lock.
	LockTTL time.Duration `koanf:"lock_ttl"`

	// LockRetries and LockRetryInterval bound how long a caller that
	// lost the refresh race waits for the winner.
	LockRetries       int           `koanf:"lock_retries"`
	LockRetryInterval time.Duration `koanf:"lock_retry_interval"`

	// RefreshTimeout bounds the upstream refresh call.
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`

	// CleanupInterval is how often expired sessions are swept.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// EncryptionKey is the base64 master key for encrypting credential
	// bundles at rest. Empty disables encryption (development only).
	EncryptionKey string `koanf:"encryption_key"`

	// CookieName carries the session token in browsers.
	CookieName   string `koanf:"cookie_name"`
	CookieSecure bool   `koanf:"cookie_secure"`
}

// IdentityConfig holds upstream OAuth provider settings.
type IdentityConfig struct {
	// Provider names the registry entry built from this block.
	Provider     string   `koanf:"provider"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri"`
	AuthURL      string   `koanf:"auth_url"`
	TokenURL     string   `koanf:"token_url"`
	APIBase      string   `koanf:"api_base"`
	Scopes       []string `koanf:"scopes"`
}

// MembershipConfig holds external membership provider settings.
type MembershipConfig struct {
	Provider     string        `koanf:"provider"`
	BaseURL      string        `koanf:"base_url"`
	ServiceToken string        `koanf:"service_token"`

	// Timeout bounds one membership lookup.
	Timeout time.Duration `koanf:"timeout"`

	// SnapshotTTL is the freshness window for degraded-mode reads of
	// cached membership.
	SnapshotTTL time.Duration `koanf:"snapshot_ttl"`

	// RatePerSecond smooths outbound lookups; 0 disables smoothing.
	RatePerSecond float64 `koanf:"rate_per_second"`
	RateBurst     int     `koanf:"rate_burst"`
}

// PlatformConfig holds platform-operator settings.
type PlatformConfig struct {
	// AdminIDs is the allow-list of platform admin subject IDs.
	AdminIDs []string `koanf:"admin_ids"`

	// ControlTenantID is the platform's designated control tenant.
	// Its owner and holders of AdminRoleID resolve as platform admins.
	ControlTenantID string `koanf:"control_tenant_id"`
	AdminRoleID     string `koanf:"admin_role_id"`
}

// SecurityConfig holds credential-verification settings.
type SecurityConfig struct {
	// SystemSecret signs and verifies service-to-service tokens.
	SystemSecret string `koanf:"system_secret"`

	// SystemTokenTTL bounds minted service tokens.
	SystemTokenTTL time.Duration `koanf:"system_token_ttl"`
}

// validate is shared across Validate calls; the validator caches struct
// metadata internally and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration is internally consistent.
// Tag-level rules run through go-playground/validator; cross-field rules
// that tags cannot express are checked by hand.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Sessions.Backend == "badger" && c.Sessions.BadgerPath == "" {
		return fmt.Errorf("sessions.badger_path is required when sessions.backend=badger")
	}

	if c.Sessions.RefreshMargin <= 0 {
		return fmt.Errorf("sessions.refresh_margin must be positive")
	}

	if c.Identity.ClientID != "" && c.Identity.TokenURL == "" {
		return fmt.Errorf("identity.token_url is required when identity.client_id is set")
	}

	if c.Security.SystemSecret != "" && len(c.Security.SystemSecret) < 32 {
		return fmt.Errorf("security.system_secret must be at least 32 characters")
	}

	if c.Platform.AdminRoleID != "" && c.Platform.ControlTenantID == "" {
		return fmt.Errorf("platform.control_tenant_id is required when platform.admin_role_id is set")
	}

	if c.Server.Environment == "production" && c.Sessions.EncryptionKey == "" {
		return fmt.Errorf("sessions.encryption_key is required in production")
	}

	return nil
}

// IsProduction reports whether the service runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
