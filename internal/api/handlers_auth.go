// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/tenantgate/tenantgate/internal/gateway"
	"github.com/tenantgate/tenantgate/internal/identity"
	"github.com/tenantgate/tenantgate/internal/logging"
	"github.com/tenantgate/tenantgate/internal/session"
)

// stateCookie carries the CSRF state between login and callback.
const stateCookie = "tg_oauth_state"

// Login starts the authorization-code flow: the client receives the
// provider's authorize URL and redirects the browser itself.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	state, err := randomState()
	if err != nil {
		rw.InternalError("Failed to generate state")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/v1/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cfg.Sessions.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	rw.Success(map[string]string{
		"authorize_url": h.idp.AuthorizeURL(state),
	})
}

// Callback completes the flow: code exchange, profile fetch, session
// creation, cookie set.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		rw.BadRequest("Missing code or state")
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != state {
		rw.BadRequest("State mismatch")
		return
	}
	// State is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/v1/auth", MaxAge: -1})

	creds, err := h.idp.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) || errors.Is(err, identity.ErrRateLimited) {
			rw.ServiceUnavailable("Identity provider unavailable")
			return
		}
		rw.Unauthorized("Code exchange rejected")
		return
	}

	profile, err := h.idp.FetchProfile(r.Context(), creds.AccessToken)
	if err != nil {
		logging.Error().Err(err).Msg("Profile fetch failed after exchange")
		rw.ServiceUnavailable("Identity provider unavailable")
		return
	}

	sess := session.New(profile.ID, profile.Username, profile.AvatarURL, h.cfg.Identity.Provider, session.CredentialBundle{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	}, h.cfg.Sessions.TTL)

	if err := h.sessions.Create(r.Context(), sess); err != nil {
		logging.Error().Err(err).Msg("Session create failed")
		rw.ServiceUnavailable("Session store unavailable")
		return
	}

	http.SetCookie(w, h.sessionCookie(sess.ID, int(h.cfg.Sessions.TTL.Seconds())))

	logging.Info().
		Str("subject_id", profile.ID).
		Str("username", profile.Username).
		Msg("Session created")

	rw.Created(map[string]interface{}{
		"subject_id": profile.ID,
		"username":   profile.Username,
		"avatar_url": profile.AvatarURL,
		"expires_at": sess.ExpiresAt,
	})
}

// Logout deletes the caller's session and clears the cookie. Always
// succeeds from the client's perspective: an unknown token has nothing
// to delete.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if token := h.token(r); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			logging.Warn().Err(err).Msg("Session delete failed on logout")
		} else {
			session.SessionsDeleted.WithLabelValues("logout").Inc()
		}
	}

	http.SetCookie(w, h.sessionCookie("", -1))
	rw.NoContent()
}

// Me returns the caller's cached profile.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subject, sess, outcome := h.gateway.Subject(r.Context(), h.token(r))
	if outcome != gateway.OutcomeAllowed {
		h.writeDenial(w, r, outcome)
		return
	}

	if subject.IsSystem() {
		rw.Success(map[string]interface{}{"kind": "system"})
		return
	}

	rw.Success(map[string]interface{}{
		"kind":       "user",
		"subject_id": subject.ID,
		"username":   subject.Username(),
		"avatar_url": sess.AvatarURL,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *Handlers) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.Sessions.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Sessions.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
