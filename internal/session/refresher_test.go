// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tenantgate/tenantgate/internal/identity"
)

// fakeProvider implements identity.Provider for refresh tests.
type fakeProvider struct {
	mu          sync.Mutex
	refreshErr  error
	result      identity.Credentials
	delay       time.Duration
	calls       atomic.Int64
	sawCanceled atomic.Bool
}

func (f *fakeProvider) AuthorizeURL(state string) string { return "http://id.example/auth" }

func (f *fakeProvider) Exchange(ctx context.Context, code string) (identity.Credentials, error) {
	return identity.Credentials{}, errors.New("not implemented")
}

func (f *fakeProvider) FetchProfile(ctx context.Context, accessToken string) (identity.Profile, error) {
	return identity.Profile{}, errors.New("not implemented")
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (identity.Credentials, error) {
	f.calls.Add(1)
	if ctx.Err() != nil {
		f.sawCanceled.Store(true)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return identity.Credentials{}, f.refreshErr
	}
	return f.result, nil
}

func freshCreds() identity.Credentials {
	return identity.Credentials{
		AccessToken:  "at-new",
		RefreshToken: "rt-new",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newRefreshFixture(t *testing.T, expiresIn time.Duration, p *fakeProvider) (*Refresher, *MemoryStore, *Session) {
	t.Helper()
	store := NewMemoryStore()
	sess := New("42", "casey", "", "oauth", testBundle(expiresIn), time.Hour)
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	r := NewRefresher(store, p, RefresherConfig{
		Margin:            5 * time.Minute,
		LockTTL:           time.Second,
		LockRetries:       50,
		LockRetryInterval: 5 * time.Millisecond,
		RefreshTimeout:    time.Second,
	})
	return r, store, sess
}

func TestEnsureFreshSkipsFreshBundle(t *testing.T) {
	p := &fakeProvider{result: freshCreds()}
	r, _, sess := newRefreshFixture(t, time.Hour, p)

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error: %v", err)
	}
	if got.Bundle.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want untouched at-1", got.Bundle.AccessToken)
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider called %d times, want 0", p.calls.Load())
	}
}

func TestEnsureFreshSkipsLegacyBundle(t *testing.T) {
	p := &fakeProvider{result: freshCreds()}
	store := NewMemoryStore()
	sess := New("42", "casey", "", "oauth", CredentialBundle{AccessToken: "at-legacy", RefreshToken: "rt-legacy"}, time.Hour)
	_ = store.Create(context.Background(), sess)
	r := NewRefresher(store, p, RefresherConfig{})

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error: %v", err)
	}
	if got.Bundle.AccessToken != "at-legacy" {
		t.Errorf("AccessToken = %q, want at-legacy", got.Bundle.AccessToken)
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider called %d times, want 0", p.calls.Load())
	}
}

func TestEnsureFreshRefreshesStaleBundle(t *testing.T) {
	p := &fakeProvider{result: freshCreds()}
	r, store, sess := newRefreshFixture(t, time.Minute, p)

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error: %v", err)
	}
	if got.Bundle.AccessToken != "at-new" || got.Bundle.RefreshToken != "rt-new" {
		t.Errorf("bundle = %+v, want refreshed", got.Bundle)
	}

	// The refreshed bundle is persisted, not just returned.
	stored, _ := store.Get(context.Background(), sess.ID)
	if stored.Bundle.AccessToken != "at-new" {
		t.Errorf("stored AccessToken = %q, want at-new", stored.Bundle.AccessToken)
	}
}

func TestEnsureFreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	p := &fakeProvider{result: identity.Credentials{
		AccessToken: "at-new",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	r, store, sess := newRefreshFixture(t, time.Minute, p)

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error: %v", err)
	}
	if got.Bundle.RefreshToken != "rt-1" {
		t.Errorf("RefreshToken = %q, want retained rt-1", got.Bundle.RefreshToken)
	}
	stored, _ := store.Get(context.Background(), sess.ID)
	if stored.Bundle.RefreshToken != "rt-1" {
		t.Errorf("stored RefreshToken = %q, want rt-1", stored.Bundle.RefreshToken)
	}
}

func TestEnsureFreshDeadGrantTerminatesSession(t *testing.T) {
	p := &fakeProvider{refreshErr: identity.ErrInvalidGrant}
	r, store, sess := newRefreshFixture(t, time.Minute, p)

	_, err := r.EnsureFresh(context.Background(), sess)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("EnsureFresh() error = %v, want ErrSessionExpired", err)
	}

	if _, err := store.Get(context.Background(), sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session still present after dead grant: %v", err)
	}
}

func TestEnsureFreshTransientFailureServesStale(t *testing.T) {
	p := &fakeProvider{refreshErr: identity.ErrUnavailable}
	r, store, sess := newRefreshFixture(t, time.Minute, p)

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v, want nil (stale served)", err)
	}
	if got.Bundle.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want stale at-1", got.Bundle.AccessToken)
	}

	// The session survives transient failures.
	if _, err := store.Get(context.Background(), sess.ID); err != nil {
		t.Errorf("session gone after transient failure: %v", err)
	}
}

func TestEnsureFreshRateLimitedServesStale(t *testing.T) {
	p := &fakeProvider{refreshErr: identity.ErrRateLimited}
	r, _, sess := newRefreshFixture(t, time.Minute, p)

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v, want nil", err)
	}
	if got.Bundle.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want stale at-1", got.Bundle.AccessToken)
	}
}

func TestEnsureFreshConcurrentSingleRefresh(t *testing.T) {
	p := &fakeProvider{result: freshCreds(), delay: 30 * time.Millisecond}
	r, _, sess := newRefreshFixture(t, time.Minute, p)

	const workers = 8
	results := make([]*Session, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.EnsureFresh(context.Background(), sess)
		}(i)
	}
	wg.Wait()

	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want exactly 1", got)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Errorf("worker %d error: %v", i, errs[i])
			continue
		}
		if results[i].Bundle.AccessToken != "at-new" {
			t.Errorf("worker %d AccessToken = %q, want at-new", i, results[i].Bundle.AccessToken)
		}
	}
}

func TestEnsureFreshWinnerRechecksUnderLock(t *testing.T) {
	p := &fakeProvider{result: freshCreds()}
	r, store, sess := newRefreshFixture(t, time.Minute, p)

	// Simulate another process refreshing between the staleness check
	// and lock acquisition.
	_ = store.UpdateBundle(context.Background(), sess.ID, CredentialBundle{
		AccessToken:  "at-other",
		RefreshToken: "rt-other",
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error: %v", err)
	}
	if got.Bundle.AccessToken != "at-other" {
		t.Errorf("AccessToken = %q, want at-other from re-read", got.Bundle.AccessToken)
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider called %d times, want 0", p.calls.Load())
	}
}

func TestEnsureFreshRunsToCompletionOnCancel(t *testing.T) {
	p := &fakeProvider{result: freshCreds()}
	r, store, sess := newRefreshFixture(t, time.Minute, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The caller is gone, but the refresh must still complete: dropping
	// it mid-flight could lose a rotated refresh token.
	_, _ = r.EnsureFresh(ctx, sess)

	if p.calls.Load() != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls.Load())
	}
	if p.sawCanceled.Load() {
		t.Error("refresh ran under a canceled context")
	}
	stored, err := store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Bundle.AccessToken != "at-new" {
		t.Errorf("stored AccessToken = %q, want at-new", stored.Bundle.AccessToken)
	}
}

func TestEnsureFreshLoserSeesDeletedSession(t *testing.T) {
	p := &fakeProvider{refreshErr: identity.ErrInvalidGrant, delay: 20 * time.Millisecond}
	r, _, sess := newRefreshFixture(t, time.Minute, p)

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.EnsureFresh(context.Background(), sess)
		}(i)
	}
	wg.Wait()

	// The winner deletes the session; every caller sees it expired.
	for i, err := range errs {
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("worker %d error = %v, want ErrSessionExpired", i, err)
		}
	}
}

func TestEnsureFreshNoRefreshToken(t *testing.T) {
	p := &fakeProvider{result: freshCreds()}
	store := NewMemoryStore()
	sess := New("42", "casey", "", "oauth", CredentialBundle{
		AccessToken: "at-1",
		ExpiresAt:   time.Now().Add(time.Minute),
	}, time.Hour)
	_ = store.Create(context.Background(), sess)
	r := NewRefresher(store, p, RefresherConfig{})

	got, err := r.EnsureFresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("EnsureFresh() error: %v", err)
	}
	if got.Bundle.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want at-1", got.Bundle.AccessToken)
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider called %d times, want 0", p.calls.Load())
	}
}
