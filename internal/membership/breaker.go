// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package membership

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tenantgate/tenantgate/internal/logging"
)

// BreakerProvider wraps a Provider with a circuit breaker so a dead
// membership service fails permission checks fast instead of stacking
// up timed-out lookups.
//
// Only ErrUnavailable counts as a breaker failure: rate limiting and
// non-member answers say the service is alive.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker[Membership]
	name  string
}

// NewBreakerProvider wraps inner with circuit breaker protection.
// The circuit opens after a 60% failure rate over at least 10 requests,
// and probes recovery after 30 seconds.
func NewBreakerProvider(inner Provider) *BreakerProvider {
	name := "membership-service"

	breakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[Membership](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrUnavailable)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("membership circuit breaker state change")
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerProvider{inner: inner, cb: cb, name: name}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Lookup resolves membership through the circuit breaker. A rejected
// call (open circuit) surfaces as ErrUnavailable so callers degrade the
// same way they would for a direct outage.
func (p *BreakerProvider) Lookup(ctx context.Context, tenantID, subjectID string) (Membership, error) {
	m, err := p.cb.Execute(func() (Membership, error) {
		return p.inner.Lookup(ctx, tenantID, subjectID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			lookupTotal.WithLabelValues("rejected").Inc()
			return Membership{}, ErrUnavailable
		}
		switch {
		case errors.Is(err, ErrRateLimited):
			lookupTotal.WithLabelValues("rate_limited").Inc()
		default:
			lookupTotal.WithLabelValues("failure").Inc()
		}
		return Membership{}, err
	}

	if m.Member {
		lookupTotal.WithLabelValues("member").Inc()
	} else {
		lookupTotal.WithLabelValues("non_member").Inc()
	}
	return m, nil
}
