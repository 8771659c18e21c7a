// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package session

import (
	"context"
	"errors"
	"time"

	"github.com/tenantgate/tenantgate/internal/identity"
	"github.com/tenantgate/tenantgate/internal/logging"
)

// RefresherConfig tunes the refresh critical section.
type RefresherConfig struct {
	// Margin is how far before credential expiry a refresh triggers.
	Margin time.Duration

	// LockTTL bounds a crashed holder's grip on the refresh lock.
	LockTTL time.Duration

	// LockRetries and LockRetryInterval bound how long a caller that
	// lost the lock race waits for the winner's result.
	LockRetries       int
	LockRetryInterval time.Duration

	// RefreshTimeout bounds the upstream refresh call.
	RefreshTimeout time.Duration
}

func (c *RefresherConfig) withDefaults() RefresherConfig {
	out := *c
	if out.Margin <= 0 {
		out.Margin = 5 * time.Minute
	}
	if out.LockTTL <= 0 {
		out.LockTTL = 10 * time.Second
	}
	if out.LockRetries <= 0 {
		out.LockRetries = 5
	}
	if out.LockRetryInterval <= 0 {
		out.LockRetryInterval = 100 * time.Millisecond
	}
	if out.RefreshTimeout <= 0 {
		out.RefreshTimeout = 5 * time.Second
	}
	return out
}

// Refresher keeps session credentials fresh, guaranteeing at most one
// in-flight refresh per session across concurrent callers.
type Refresher struct {
	store    Store
	provider identity.Provider
	cfg      RefresherConfig

	now func() time.Time
}

// NewRefresher builds a Refresher over the given store and provider.
func NewRefresher(store Store, provider identity.Provider, cfg RefresherConfig) *Refresher {
	return &Refresher{
		store:    store,
		provider: provider,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// EnsureFresh returns the session with usable credentials, refreshing
// them first when they are within the margin of expiry.
//
// Guarantees:
//   - Legacy bundles without a known expiry are returned untouched.
//   - At most one caller refreshes a given session at a time; losers
//     wait briefly for the winner's result, then proceed with whatever
//     credentials are stored.
//   - A permanently rejected grant deletes the session and returns
//     ErrSessionExpired.
//   - Transient upstream failures return the stale credentials rather
//     than failing the caller.
func (r *Refresher) EnsureFresh(ctx context.Context, sess *Session) (*Session, error) {
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	if !sess.Bundle.StaleAt(r.now(), r.cfg.Margin) {
		return sess, nil
	}
	if sess.Bundle.RefreshToken == "" {
		// Nothing to refresh with; keep serving the stored token.
		return sess, nil
	}

	acquired, err := r.store.AcquireRefreshLock(ctx, sess.ID, r.cfg.LockTTL)
	if err != nil {
		logging.Warn().Err(err).Str("session_id", sess.ID).Msg("refresh lock acquisition failed")
		return sess, nil
	}

	if acquired {
		return r.refreshAsWinner(ctx, sess)
	}
	return r.waitAsLoser(ctx, sess)
}

// refreshAsWinner holds the lock and performs the actual refresh.
func (r *Refresher) refreshAsWinner(ctx context.Context, sess *Session) (*Session, error) {
	defer func() {
		if err := r.store.ReleaseRefreshLock(context.WithoutCancel(ctx), sess.ID); err != nil {
			logging.Warn().Err(err).Str("session_id", sess.ID).Msg("refresh lock release failed")
		}
	}()

	// Re-read under the lock: another process may have finished a
	// refresh between our staleness check and lock acquisition.
	current, err := r.store.Get(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
			return nil, ErrSessionExpired
		}
		return sess, nil
	}
	if !current.Bundle.StaleAt(r.now(), r.cfg.Margin) {
		return current, nil
	}

	// The refresh runs to completion even if the caller goes away:
	// abandoning it mid-flight could discard a rotated refresh token.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.RefreshTimeout)
	defer cancel()

	creds, err := r.provider.Refresh(refreshCtx, current.Bundle.RefreshToken)
	if err != nil {
		if identity.IsPermanent(err) {
			logging.Info().
				Str("session_id", sess.ID).
				Str("subject_id", sess.SubjectID).
				Msg("refresh grant rejected, terminating session")
			refreshFailures.WithLabelValues("permanent").Inc()
			if derr := r.store.Delete(context.WithoutCancel(ctx), sess.ID); derr != nil {
				logging.Warn().Err(derr).Str("session_id", sess.ID).Msg("session delete after dead grant failed")
			}
			return nil, ErrSessionExpired
		}

		// Transient: keep serving the stored credentials. Availability
		// wins over freshness here.
		logging.Warn().Err(err).Str("session_id", sess.ID).Msg("credential refresh failed transiently")
		refreshFailures.WithLabelValues("transient").Inc()
		return current, nil
	}

	bundle := CredentialBundle{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	}
	if bundle.RefreshToken == "" {
		// Provider did not rotate; keep the old refresh token.
		bundle.RefreshToken = current.Bundle.RefreshToken
	}

	if err := r.store.UpdateBundle(context.WithoutCancel(ctx), sess.ID, bundle); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		logging.Error().Err(err).Str("session_id", sess.ID).Msg("bundle persist failed after refresh")
		return current, nil
	}

	refreshSuccesses.Inc()
	updated := *current
	updated.Bundle = bundle
	return &updated, nil
}

// waitAsLoser polls for the winner's result a bounded number of times,
// then proceeds with whatever is stored.
func (r *Refresher) waitAsLoser(ctx context.Context, sess *Session) (*Session, error) {
	lockContention.Inc()

	for i := 0; i < r.cfg.LockRetries; i++ {
		select {
		case <-ctx.Done():
			return sess, nil
		case <-time.After(r.cfg.LockRetryInterval):
		}

		current, err := r.store.Get(ctx, sess.ID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
				// The winner found a dead grant and deleted the session.
				return nil, ErrSessionExpired
			}
			continue
		}
		if !current.Bundle.StaleAt(r.now(), r.cfg.Margin) {
			return current, nil
		}
	}

	// The winner is slow or failed transiently. Proceed with the stored
	// credentials if the session still exists.
	current, err := r.store.Get(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
			return nil, ErrSessionExpired
		}
		return sess, nil
	}
	return current, nil
}
