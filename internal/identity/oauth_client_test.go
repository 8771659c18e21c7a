// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tenantgate/tenantgate/internal/config"
)

func newTestClient(tokenURL, apiBase string) *OAuthClient {
	c := NewOAuthClient(&config.IdentityConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://gate.example/auth/callback",
		AuthURL:      "https://id.example/oauth/authorize",
		Scopes:       []string{"identify", "guilds"},
	}, 2*time.Second)
	c.SetEndpoints("", tokenURL, apiBase)
	return c
}

func TestAuthorizeURL(t *testing.T) {
	c := newTestClient("", "")
	raw := c.AuthorizeURL("state-abc")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorize URL: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "client-1" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "state-abc" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("scope") != "identify guilds" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestExchangeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "code-xyz" {
			t.Errorf("code = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	creds, err := c.Exchange(context.Background(), "code-xyz")
	if err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}
	if creds.AccessToken != "at-1" || creds.RefreshToken != "rt-1" {
		t.Errorf("creds = %+v", creds)
	}
	if creds.ExpiresAt.Before(time.Now().Add(30 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want roughly now+1h", creds.ExpiresAt)
	}
}

func TestRefreshErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid grant", http.StatusBadRequest, `{"error":"invalid_grant"}`, ErrInvalidGrant},
		{"unauthorized client", http.StatusUnauthorized, `{"error":"invalid_client"}`, ErrInvalidGrant},
		{"expired grant", http.StatusBadRequest, `{"error":"expired_grant"}`, ErrExpiredGrant},
		{"rate limited", http.StatusTooManyRequests, `{"error":"rate_limited"}`, ErrRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ``, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL, "")
			_, err := c.Refresh(context.Background(), "rt-dead")
			if !errors.Is(err, tc.want) {
				t.Errorf("Refresh() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if got := r.PostForm.Get("refresh_token"); got != "rt-old" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-new","expires_in":600}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	creds, err := c.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if creds.RefreshToken != "rt-new" {
		t.Errorf("RefreshToken = %q, want rt-new", creds.RefreshToken)
	}
}

func TestRefreshNetworkErrorIsUnavailable(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1/token", "")
	_, err := c.Refresh(context.Background(), "rt-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Refresh() error = %v, want ErrUnavailable", err)
	}
}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/@me") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"4242","username":"casey","avatar":"https://cdn.example/a.png"}`))
	}))
	defer srv.Close()

	c := newTestClient("", srv.URL)
	p, err := c.FetchProfile(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("FetchProfile() error: %v", err)
	}
	if p.ID != "4242" || p.Username != "casey" {
		t.Errorf("profile = %+v", p)
	}
}

func TestFetchProfileUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient("", srv.URL)
	_, err := c.FetchProfile(context.Background(), "at-dead")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("FetchProfile() error = %v, want ErrInvalidGrant", err)
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(ErrInvalidGrant) || !IsPermanent(ErrExpiredGrant) {
		t.Error("grant errors should be permanent")
	}
	if IsPermanent(ErrRateLimited) || IsPermanent(ErrUnavailable) || IsPermanent(nil) {
		t.Error("transient errors should not be permanent")
	}
}
