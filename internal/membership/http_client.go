// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package membership

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tenantgate/tenantgate/internal/config"
)

// HTTPClient implements Provider against the membership service's REST
// API, authenticated with a service token. Outbound calls are smoothed
// with a token-bucket limiter so a burst of permission checks cannot
// trip the service's rate limits.
type HTTPClient struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// memberResponse is the membership service's member record payload.
type memberResponse struct {
	Roles []string `json:"roles"`
}

// NewHTTPClient builds a client from the membership configuration.
func NewHTTPClient(cfg *config.MembershipConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &HTTPClient{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceToken: cfg.ServiceToken,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      limiter,
	}
}

// Lookup resolves the subject's membership in a tenant.
//
// Status mapping: 200 carries the role list, 404 is a definitive
// non-member answer, 429 is ErrRateLimited, and anything else that
// prevents an answer is ErrUnavailable.
func (c *HTTPClient) Lookup(ctx context.Context, tenantID, subjectID string) (Membership, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Membership{}, fmt.Errorf("%w: limiter wait: %v", ErrUnavailable, err)
		}
	}

	endpoint := fmt.Sprintf("%s/tenants/%s/members/%s",
		c.baseURL, url.PathEscape(tenantID), url.PathEscape(subjectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Membership{}, fmt.Errorf("create membership request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Membership{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Membership{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var member memberResponse
		if err := json.Unmarshal(body, &member); err != nil {
			return Membership{}, fmt.Errorf("%w: parse member response: %v", ErrUnavailable, err)
		}
		return Membership{Member: true, Roles: member.Roles}, nil

	case http.StatusNotFound:
		// Definitive: the subject is not a member of this tenant.
		return Membership{Member: false}, nil

	case http.StatusTooManyRequests:
		return Membership{}, fmt.Errorf("%w: status 429", ErrRateLimited)

	default:
		return Membership{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

// ListRoles fetches the tenant's role catalog. Same status mapping as
// Lookup, except 404 means the tenant itself is unknown upstream and is
// reported as ErrUnavailable rather than an empty catalog.
func (c *HTTPClient) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: limiter wait: %v", ErrUnavailable, err)
		}
	}

	endpoint := fmt.Sprintf("%s/tenants/%s/roles", c.baseURL, url.PathEscape(tenantID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create roles request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var roles []Role
		if err := json.Unmarshal(body, &roles); err != nil {
			return nil, fmt.Errorf("%w: parse roles response: %v", ErrUnavailable, err)
		}
		return roles, nil

	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status 429", ErrRateLimited)

	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

// SetBaseURL overrides the service base URL, primarily for tests.
func (c *HTTPClient) SetBaseURL(u string) {
	c.baseURL = strings.TrimSuffix(u, "/")
}
