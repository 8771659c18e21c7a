// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package membership

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tenantgate/tenantgate/internal/config"
)

func newTestClient(baseURL string) *HTTPClient {
	c := NewHTTPClient(&config.MembershipConfig{
		ServiceToken: "svc-token",
		Timeout:      2 * time.Second,
	})
	c.SetBaseURL(baseURL)
	return c
}

func TestLookupMember(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenants/t-1/members/42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"roles":["role-a","role-b"]}`))
	}))
	defer srv.Close()

	m, err := newTestClient(srv.URL).Lookup(context.Background(), "t-1", "42")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if !m.Member {
		t.Error("Member = false, want true")
	}
	if !m.HasRole("role-a") || !m.HasRole("role-b") || m.HasRole("role-c") {
		t.Errorf("Roles = %v", m.Roles)
	}
}

func TestLookupNonMemberIsDefinitive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m, err := newTestClient(srv.URL).Lookup(context.Background(), "t-1", "42")
	if err != nil {
		t.Fatalf("Lookup() error = %v, want nil for non-member", err)
	}
	if m.Member {
		t.Error("Member = true, want false")
	}
	if len(m.Roles) != 0 {
		t.Errorf("Roles = %v, want empty", m.Roles)
	}
}

func TestLookupErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
		{"unauthorized", http.StatusUnauthorized, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Lookup(context.Background(), "t-1", "42")
			if !errors.Is(err, tc.want) {
				t.Errorf("Lookup() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLookupNetworkErrorIsUnavailable(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Lookup(context.Background(), "t-1", "42")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Lookup() error = %v, want ErrUnavailable", err)
	}
}

func TestLookupEscapesPathSegments(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _ = newTestClient(srv.URL).Lookup(context.Background(), "t/1", "4 2")
	if gotPath != "/tenants/t%2F1/members/4%202" {
		t.Errorf("path = %q", gotPath)
	}
}
