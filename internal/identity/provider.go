// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package identity talks to the upstream OAuth identity provider: the
// authorization-code flow, credential refresh, and profile lookup.
package identity

import (
	"context"
	"errors"
	"time"
)

// Provider errors. Callers classify failures with errors.Is: the invalid
// and expired grants are permanent and mean the stored credentials are
// dead; rate-limited and unavailable are transient.
var (
	// ErrInvalidGrant indicates the provider rejected the grant itself
	// (revoked refresh token, bad authorization code).
	ErrInvalidGrant = errors.New("identity: invalid grant")

	// ErrExpiredGrant indicates the grant has expired upstream.
	ErrExpiredGrant = errors.New("identity: expired grant")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("identity: rate limited")

	// ErrUnavailable indicates the provider could not be reached or
	// answered with a server error.
	ErrUnavailable = errors.New("identity: provider unavailable")
)

// IsPermanent reports whether err means the underlying grant is dead and
// cannot succeed on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidGrant) || errors.Is(err, ErrExpiredGrant)
}

// Credentials is one OAuth credential set as issued by the provider.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Profile is the subject's public identity at the provider.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Provider is the upstream identity provider contract.
type Provider interface {
	// AuthorizeURL builds the browser redirect for the authorization-code
	// flow. state is the caller's CSRF token.
	AuthorizeURL(state string) string

	// Exchange trades an authorization code for credentials.
	Exchange(ctx context.Context, code string) (Credentials, error)

	// Refresh trades a refresh token for new credentials. The returned
	// set may carry a rotated refresh token.
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)

	// FetchProfile resolves the subject behind an access token.
	FetchProfile(ctx context.Context, accessToken string) (Profile, error)
}
