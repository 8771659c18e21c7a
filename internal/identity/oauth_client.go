// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tenantgate/tenantgate/internal/config"
	"github.com/tenantgate/tenantgate/internal/logging"
)

// OAuthClient implements Provider against a standard OAuth 2.0
// authorization-code provider with a form-encoded token endpoint.
type OAuthClient struct {
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string

	authURL  string
	tokenURL string
	apiBase  string

	httpClient *http.Client
}

// tokenResponse is the provider's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// oauthErrorResponse is the RFC 6749 error payload.
type oauthErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// profileResponse is the provider's user endpoint payload.
type profileResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// NewOAuthClient builds a client from the identity configuration.
func NewOAuthClient(cfg *config.IdentityConfig, timeout time.Duration) *OAuthClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OAuthClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scopes:       cfg.Scopes,
		authURL:      cfg.AuthURL,
		tokenURL:     cfg.TokenURL,
		apiBase:      strings.TrimSuffix(cfg.APIBase, "/"),
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// AuthorizeURL builds the browser redirect for the code flow.
func (c *OAuthClient) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(c.scopes, " "))
	params.Set("state", state)

	sep := "?"
	if strings.Contains(c.authURL, "?") {
		sep = "&"
	}
	return c.authURL + sep + params.Encode()
}

// Exchange trades an authorization code for credentials.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (Credentials, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", c.clientID)
	data.Set("redirect_uri", c.redirectURI)
	if c.clientSecret != "" {
		data.Set("client_secret", c.clientSecret)
	}

	return c.tokenRequest(ctx, data)
}

// Refresh trades a refresh token for new credentials.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		data.Set("client_secret", c.clientSecret)
	}

	return c.tokenRequest(ctx, data)
}

// tokenRequest posts to the token endpoint and classifies the response.
func (c *OAuthClient) tokenRequest(ctx context.Context, data url.Values) (Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Credentials{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, c.classifyTokenError(resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return Credentials{}, fmt.Errorf("parse token response: %w", err)
	}

	if token.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w: token response missing access_token", ErrInvalidGrant)
	}

	creds := Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if token.ExpiresIn > 0 {
		creds.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return creds, nil
}

// classifyTokenError maps a non-OK token response to a provider error.
// 4xx grant errors are permanent; 429 and 5xx are transient.
func (c *OAuthClient) classifyTokenError(status int, body []byte) error {
	var oerr oauthErrorResponse
	_ = json.Unmarshal(body, &oerr)

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		if oerr.Error == "expired_token" || oerr.Error == "expired_grant" {
			return fmt.Errorf("%w: %s", ErrExpiredGrant, oerr.Description)
		}
		logging.Debug().
			Int("status", status).
			Str("oauth_error", oerr.Error).
			Msg("token endpoint rejected grant")
		return fmt.Errorf("%w: %s", ErrInvalidGrant, oerr.Error)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, status)
	}
}

// FetchProfile resolves the subject behind an access token via the
// provider's user endpoint.
func (c *OAuthClient) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/users/@me", nil)
	if err != nil {
		return Profile{}, fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return Profile{}, fmt.Errorf("%w: profile fetch unauthorized", ErrInvalidGrant)
	case resp.StatusCode == http.StatusTooManyRequests:
		return Profile{}, fmt.Errorf("%w: profile fetch throttled", ErrRateLimited)
	default:
		return Profile{}, fmt.Errorf("%w: profile fetch status %d", ErrUnavailable, resp.StatusCode)
	}

	var p profileResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile response: %w", err)
	}
	if p.ID == "" {
		return Profile{}, fmt.Errorf("%w: profile response missing id", ErrUnavailable)
	}

	return Profile{
		ID:        p.ID,
		Username:  p.Username,
		AvatarURL: p.Avatar,
	}, nil
}

// SetEndpoints overrides provider endpoints, primarily for tests.
func (c *OAuthClient) SetEndpoints(authURL, tokenURL, apiBase string) {
	if authURL != "" {
		c.authURL = authURL
	}
	if tokenURL != "" {
		c.tokenURL = tokenURL
	}
	if apiBase != "" {
		c.apiBase = strings.TrimSuffix(apiBase, "/")
	}
}
