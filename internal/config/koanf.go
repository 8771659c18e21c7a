// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when TENANTGATE_CONFIG is unset.
var DefaultConfigPaths = []string{
	"tenantgate.yaml",
	"config/tenantgate.yaml",
	"/etc/tenantgate/tenantgate.yaml",
}

// envPrefix namespaces environment overrides.
const envPrefix = "TENANTGATE_"

// envMapping maps well-known environment variable names (without prefix)
// to configuration paths. Variables not present here fall back to the
// generic SECTION_FIELD convention.
var envMapping = map[string]string{
	"PORT":                 "server.port",
	"HOST":                 "server.host",
	"ENVIRONMENT":          "server.environment",
	"CORS_ORIGINS":         "server.cors_origins",
	"LOG_LEVEL":            "logging.level",
	"LOG_FORMAT":           "logging.format",
	"DATABASE_PATH":        "database.path",
	"SESSION_BACKEND":      "sessions.backend",
	"SESSION_TTL":          "sessions.ttl",
	"SESSION_KEY":          "sessions.encryption_key",
	"BADGER_PATH":          "sessions.badger_path",
	"IDENTITY_CLIENT_ID":     "identity.client_id",
	"IDENTITY_CLIENT_SECRET": "identity.client_secret",
	"IDENTITY_REDIRECT_URI":  "identity.redirect_uri",
	"IDENTITY_AUTH_URL":      "identity.auth_url",
	"IDENTITY_TOKEN_URL":     "identity.token_url",
	"IDENTITY_API_BASE":      "identity.api_base",
	"IDENTITY_SCOPES":        "identity.scopes",
	"MEMBERSHIP_BASE_URL":      "membership.base_url",
	"MEMBERSHIP_SERVICE_TOKEN": "membership.service_token",
	"ADMIN_SUBJECT_IDS":        "platform.admin_ids",
	"CONTROL_TENANT_ID":        "platform.control_tenant_id",
	"ADMIN_ROLE_ID":            "platform.admin_role_id",
	"SYSTEM_SECRET":            "security.system_secret",
}

// sliceFields are comma-separated in environment variables and YAML
// scalar form; they are normalized into slices after loading.
var sliceFields = []string{
	"server.cors_origins",
	"identity.scopes",
	"platform.admin_ids",
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8484,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:      "data/tenantgate.db",
			MaxMemory: "512MB",
			Threads:   2,
		},
		Sessions: SessionsConfig{
			Backend:           "memory",
			BadgerPath:        "data/sessions",
			TTL:               720 * time.Hour,
			RefreshMargin:     5 * time.Minute,
			LockTTL:           10 * time.Second,
			LockRetries:       5,
			LockRetryInterval: 100 * time.Millisecond,
			RefreshTimeout:    5 * time.Second,
			CleanupInterval:   time.Hour,
			CookieName:        "tg_session",
			CookieSecure:      true,
		},
		Identity: IdentityConfig{
			Provider: "oauth",
			Scopes:   []string{"identify"},
		},
		Membership: MembershipConfig{
			Provider:      "http",
			Timeout:       3 * time.Second,
			SnapshotTTL:   5 * time.Minute,
			RatePerSecond: 10,
			RateBurst:     20,
		},
		Security: SecurityConfig{
			SystemTokenTTL: time.Hour,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	processSliceFields(k)

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envTransform maps TENANTGATE_* variables to config paths. Explicitly
// mapped names win; everything else follows SECTION_FIELD → section.field.
func envTransform(s string) string {
	name := strings.TrimPrefix(s, envPrefix)
	if path, ok := envMapping[name]; ok {
		return path
	}
	lower := strings.ToLower(name)
	if i := strings.Index(lower, "_"); i > 0 {
		return lower[:i] + "." + lower[i+1:]
	}
	return lower
}

// processSliceFields splits comma-separated string values into slices for
// fields declared as []string. Environment variables and terse YAML can
// then both say "a,b,c".
func processSliceFields(k *koanf.Koanf) {
	for _, key := range sliceFields {
		raw := k.Get(key)
		s, ok := raw.(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		_ = k.Set(key, out)
	}
}

// findConfigFile returns the config file path, honoring TENANTGATE_CONFIG.
func findConfigFile() string {
	if path := os.Getenv("TENANTGATE_CONFIG"); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
