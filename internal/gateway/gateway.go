// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package gateway is the single authorization choke-point. Every
// tenant-scoped operation passes through Check: token to subject,
// credential freshness, then permission resolution, collapsed into one
// distinguishable outcome the transport layer can map onto status
// codes.
package gateway

import (
	"context"
	"errors"

	"github.com/tenantgate/tenantgate/internal/authz"
	"github.com/tenantgate/tenantgate/internal/identity"
	"github.com/tenantgate/tenantgate/internal/logging"
	"github.com/tenantgate/tenantgate/internal/models"
	"github.com/tenantgate/tenantgate/internal/session"
)

// Outcome is the gateway's answer, distinguishable so callers can map
// transport semantics without inspecting errors.
type Outcome int

const (
	// OutcomeAllowed grants the operation.
	OutcomeAllowed Outcome = iota

	// OutcomeUnauthenticated means no, invalid, or expired session.
	OutcomeUnauthenticated

	// OutcomeForbidden means the resolved tier is below the required one.
	OutcomeForbidden

	// OutcomeTenantNotFound means the tenant does not exist, or the
	// denial is concealed as such for top-level existence probes.
	OutcomeTenantNotFound

	// OutcomeUnavailable means a required dependency is down. Callers
	// fail closed.
	OutcomeUnavailable
)

var outcomeNames = map[Outcome]string{
	OutcomeAllowed:         "allowed",
	OutcomeUnauthenticated: "unauthenticated",
	OutcomeForbidden:       "forbidden",
	OutcomeTenantNotFound:  "tenant_not_found",
	OutcomeUnavailable:     "unavailable",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// CheckRequest describes one authorization question.
type CheckRequest struct {
	// Token is the opaque session token or a signed system token.
	Token string

	// TenantID scopes the check. Empty means a tenant-independent
	// check: only authentication and platform standing apply.
	TenantID string

	// Required is the minimum tier the operation demands.
	Required models.Tier

	// Conceal makes a denial indistinguishable from a missing tenant.
	// Set for top-level tenant probes so non-members cannot confirm a
	// tenant exists; nested sub-resource checks leave it unset and get
	// an honest Forbidden.
	Conceal bool
}

// Decision is the gateway's verdict.
type Decision struct {
	Outcome Outcome

	// Tier is the resolved tier; meaningful when Outcome is Allowed or
	// Forbidden.
	Tier models.Tier

	// Subject identifies the caller; set for every outcome except
	// Unauthenticated and Unavailable.
	Subject models.Subject

	// Session is the live session for user subjects, nil for system
	// subjects.
	Session *session.Session
}

// Gateway wires the session store, credential refresher, system-token
// verifier, and permission resolver into one entry point.
type Gateway struct {
	sessions  session.Store
	refresher *session.Refresher
	verifier  *identity.SystemVerifier
	resolver  *authz.Resolver
}

// New builds a gateway. verifier may be nil when service-to-service
// tokens are not configured.
func New(sessions session.Store, refresher *session.Refresher, verifier *identity.SystemVerifier, resolver *authz.Resolver) *Gateway {
	return &Gateway{
		sessions:  sessions,
		refresher: refresher,
		verifier:  verifier,
		resolver:  resolver,
	}
}

// Check resolves the token to a subject, ensures the backing credential
// is fresh, and resolves the subject's tier against the tenant. It
// never returns a Go error: every failure mode is an Outcome.
func (g *Gateway) Check(ctx context.Context, req CheckRequest) Decision {
	decision := g.check(ctx, req)
	observeCheck(decision.Outcome)
	return decision
}

func (g *Gateway) check(ctx context.Context, req CheckRequest) Decision {
	if req.Token == "" {
		return Decision{Outcome: OutcomeUnauthenticated}
	}

	subject, sess, outcome := g.authenticate(ctx, req.Token)
	if outcome != OutcomeAllowed {
		return Decision{Outcome: outcome}
	}

	var tier models.Tier
	if req.TenantID == "" {
		tier = g.resolver.PlatformTier(ctx, subject)
	} else {
		var err error
		tier, err = g.resolver.Resolve(ctx, subject, req.TenantID)
		if err != nil {
			switch {
			case errors.Is(err, authz.ErrTenantNotFound):
				return Decision{Outcome: OutcomeTenantNotFound, Subject: subject, Session: sess}
			default:
				logging.Error().
					Err(err).
					Str("tenant_id", req.TenantID).
					Msg("Permission resolution failed, failing closed")
				return Decision{Outcome: OutcomeUnavailable}
			}
		}
	}

	if !tier.AtLeast(req.Required) {
		if req.Conceal {
			return Decision{Outcome: OutcomeTenantNotFound, Tier: tier, Subject: subject, Session: sess}
		}
		return Decision{Outcome: OutcomeForbidden, Tier: tier, Subject: subject, Session: sess}
	}
	return Decision{Outcome: OutcomeAllowed, Tier: tier, Subject: subject, Session: sess}
}

// authenticate turns a token into a subject. System tokens are
// verified locally; anything else is a session token whose credential
// bundle is refreshed when close to expiry.
func (g *Gateway) authenticate(ctx context.Context, token string) (models.Subject, *session.Session, Outcome) {
	if claims, err := g.verifier.Verify(token); err == nil {
		logging.Debug().Str("service", claims.Service).Msg("System token accepted")
		return models.SystemSubject(), nil, OutcomeAllowed
	}

	sess, err := g.sessions.Get(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
			return models.Subject{}, nil, OutcomeUnauthenticated
		default:
			// Store outage: fail closed, never assume authenticated.
			logging.Error().Err(err).Msg("Session store unavailable")
			return models.Subject{}, nil, OutcomeUnavailable
		}
	}

	sess, err = g.refresher.EnsureFresh(ctx, sess)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			return models.Subject{}, nil, OutcomeUnauthenticated
		}
		logging.Error().Err(err).Msg("Credential refresh failed")
		return models.Subject{}, nil, OutcomeUnavailable
	}

	profile := &models.Profile{Username: sess.Username, AvatarURL: sess.AvatarURL}
	return models.UserSubject(sess.SubjectID, profile), sess, OutcomeAllowed
}

// Subject authenticates a token without any tenant check. Used by
// endpoints that only need to know who is calling.
func (g *Gateway) Subject(ctx context.Context, token string) (models.Subject, *session.Session, Outcome) {
	if token == "" {
		return models.Subject{}, nil, OutcomeUnauthenticated
	}
	return g.authenticate(ctx, token)
}
