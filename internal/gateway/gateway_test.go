// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tenantgate/tenantgate/internal/authz"
	"github.com/tenantgate/tenantgate/internal/database"
	"github.com/tenantgate/tenantgate/internal/identity"
	"github.com/tenantgate/tenantgate/internal/membership"
	"github.com/tenantgate/tenantgate/internal/models"
	"github.com/tenantgate/tenantgate/internal/session"
)

// fakeIdentity satisfies identity.Provider for refresh paths.
type fakeIdentity struct {
	refreshErr error
	refreshed  identity.Credentials
}

func (f *fakeIdentity) AuthorizeURL(string) string { return "https://idp.example/authorize" }

func (f *fakeIdentity) Exchange(context.Context, string) (identity.Credentials, error) {
	return identity.Credentials{}, identity.ErrInvalidGrant
}

func (f *fakeIdentity) Refresh(context.Context, string) (identity.Credentials, error) {
	if f.refreshErr != nil {
		return identity.Credentials{}, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeIdentity) FetchProfile(context.Context, string) (identity.Profile, error) {
	return identity.Profile{}, identity.ErrInvalidGrant
}

type staticMembership struct {
	members map[string]membership.Membership
	err     error
}

func (s *staticMembership) Lookup(_ context.Context, tenantID, subjectID string) (membership.Membership, error) {
	if s.err != nil {
		return membership.Membership{}, s.err
	}
	return s.members[tenantID+"/"+subjectID], nil
}

type fixture struct {
	gateway  *Gateway
	sessions *session.MemoryStore
	store    *database.MemoryStore
	verifier *identity.SystemVerifier
}

func newFixture(t *testing.T, idp identity.Provider, members *staticMembership) *fixture {
	t.Helper()

	sessions := session.NewMemoryStore()
	refresher := session.NewRefresher(sessions, idp, session.RefresherConfig{
		Margin:            5 * time.Minute,
		LockTTL:           time.Second,
		LockRetries:       2,
		LockRetryInterval: 5 * time.Millisecond,
		RefreshTimeout:    time.Second,
	})
	verifier, err := identity.NewSystemVerifier(strings.Repeat("s", 32), time.Minute)
	if err != nil {
		t.Fatalf("NewSystemVerifier() error = %v", err)
	}

	store := database.NewMemoryStore()
	resolver := authz.NewResolver(store, members, nil, 0)

	return &fixture{
		gateway:  New(sessions, refresher, verifier, resolver),
		sessions: sessions,
		store:    store,
		verifier: verifier,
	}
}

func (f *fixture) seedTenant(t *testing.T, id, ownerID string) {
	t.Helper()
	tenant := &models.Tenant{ID: id, Name: id, OwnerID: ownerID, Active: true}
	if err := f.store.UpsertTenant(context.Background(), tenant, "system:test", "test"); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func (f *fixture) seedSession(t *testing.T, subjectID string, bundle session.CredentialBundle) *session.Session {
	t.Helper()
	sess := session.New(subjectID, "user-"+subjectID, "", "oauth", bundle, time.Hour)
	if err := f.sessions.Create(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess
}

func freshBundle() session.CredentialBundle {
	return session.CredentialBundle{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestCheckNoToken(t *testing.T) {
	f := newFixture(t, &fakeIdentity{}, &staticMembership{})

	d := f.gateway.Check(context.Background(), CheckRequest{TenantID: "t1", Required: models.TierGenericMember})
	if d.Outcome != OutcomeUnauthenticated {
		t.Errorf("Outcome = %v, want Unauthenticated", d.Outcome)
	}
}

func TestCheckUnknownToken(t *testing.T) {
	f := newFixture(t, &fakeIdentity{}, &staticMembership{})

	d := f.gateway.Check(context.Background(), CheckRequest{Token: "nope", TenantID: "t1"})
	if d.Outcome != OutcomeUnauthenticated {
		t.Errorf("Outcome = %v, want Unauthenticated", d.Outcome)
	}
}

func TestCheckOwnerAllowed(t *testing.T) {
	f := newFixture(t, &fakeIdentity{}, &staticMembership{})
	f.seedTenant(t, "t1", "u1")
	sess := f.seedSession(t, "u1", freshBundle())

	d := f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		TenantID: "t1",
		Required: models.TierOwner,
	})
	if d.Outcome != OutcomeAllowed {
		t.Fatalf("Outcome = %v, want Allowed", d.Outcome)
	}
	if d.Tier != models.TierOwner {
		t.Errorf("Tier = %v, want TierOwner", d.Tier)
	}
	if d.Subject.ID != "u1" {
		t.Errorf("Subject.ID = %q, want u1", d.Subject.ID)
	}
}

func TestCheckForbiddenVsConcealed(t *testing.T) {
	f := newFixture(t, &fakeIdentity{}, &staticMembership{})
	f.seedTenant(t, "t1", "owner-1")
	sess := f.seedSession(t, "stranger", freshBundle())

	// Nested sub-resource check: honest Forbidden.
	d := f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		TenantID: "t1",
		Required: models.TierGenericMember,
	})
	if d.Outcome != OutcomeForbidden {
		t.Errorf("nested Outcome = %v, want Forbidden", d.Outcome)
	}

	// Top-level probe: denial concealed as a missing tenant.
	d = f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		TenantID: "t1",
		Required: models.TierGenericMember,
		Conceal:  true,
	})
	if d.Outcome != OutcomeTenantNotFound {
		t.Errorf("concealed Outcome = %v, want TenantNotFound", d.Outcome)
	}
}

func TestCheckTenantNotFound(t *testing.T) {
	f := newFixture(t, &fakeIdentity{}, &staticMembership{})
	sess := f.seedSession(t, "u1", freshBundle())

	d := f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		TenantID: "missing",
		Required: models.TierGenericMember,
	})
	if d.Outcome != OutcomeTenantNotFound {
		t.Errorf("Outcome = %v, want TenantNotFound", d.Outcome)
	}
}

func TestCheckSystemToken(t *testing.T) {
	f := newFixture(t, &fakeIdentity{}, &staticMembership{})

	token, err := f.verifier.Mint("sync-worker")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	// System identity passes even against a tenant that does not exist.
	d := f.gateway.Check(context.Background(), CheckRequest{
		Token:    token,
		TenantID: "missing",
		Required: models.TierSystemIdentity,
	})
	if d.Outcome != OutcomeAllowed {
		t.Fatalf("Outcome = %v, want Allowed", d.Outcome)
	}
	if !d.Subject.IsSystem() {
		t.Error("Subject is not the system identity")
	}
	if d.Session != nil {
		t.Error("system subject should carry no session")
	}
}

func TestCheckDeadGrantIsUnauthenticatedAndSessionGone(t *testing.T) {
	idp := &fakeIdentity{refreshErr: identity.ErrInvalidGrant}
	f := newFixture(t, idp, &staticMembership{})
	f.seedTenant(t, "t1", "u1")

	// Bundle expired 10 seconds ago: refresh is forced and fails
	// permanently.
	sess := f.seedSession(t, "u1", session.CredentialBundle{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-10 * time.Second),
	})

	d := f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		TenantID: "t1",
		Required: models.TierGenericMember,
	})
	if d.Outcome != OutcomeUnauthenticated {
		t.Fatalf("Outcome = %v, want Unauthenticated", d.Outcome)
	}

	if _, err := f.sessions.Get(context.Background(), sess.ID); err == nil {
		t.Error("session survived an unrecoverable refresh failure")
	}
}

func TestCheckTransientRefreshFailureStillServes(t *testing.T) {
	idp := &fakeIdentity{refreshErr: identity.ErrUnavailable}
	f := newFixture(t, idp, &staticMembership{})
	f.seedTenant(t, "t1", "u1")

	sess := f.seedSession(t, "u1", session.CredentialBundle{
		AccessToken:  "soon-stale",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Minute), // inside the 5m margin
	})

	d := f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		TenantID: "t1",
		Required: models.TierOwner,
	})
	if d.Outcome != OutcomeAllowed {
		t.Errorf("Outcome = %v, want Allowed on transient refresh failure", d.Outcome)
	}
}

func TestCheckTenantlessPlatformCheck(t *testing.T) {
	f := newFixture(t, &fakeIdentity{}, &staticMembership{})
	sess := f.seedSession(t, "u1", freshBundle())

	// Ordinary user asking for platform-admin standing: Forbidden.
	d := f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		Required: models.TierPlatformAdmin,
	})
	if d.Outcome != OutcomeForbidden {
		t.Errorf("Outcome = %v, want Forbidden", d.Outcome)
	}

	// Tier None is still enough when nothing is required beyond login.
	d = f.gateway.Check(context.Background(), CheckRequest{
		Token:    sess.ID,
		Required: models.TierNone,
	})
	if d.Outcome != OutcomeAllowed {
		t.Errorf("Outcome = %v, want Allowed", d.Outcome)
	}
}
