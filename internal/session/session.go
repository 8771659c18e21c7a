// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

// Package session manages authenticated browser sessions and the OAuth
// credentials they carry, including race-free credential refresh.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// Session-related errors
var (
	// ErrSessionNotFound is returned when a session is not found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session exists but is no
	// longer usable: past its own expiry, or its credentials were
	// permanently rejected upstream.
	ErrSessionExpired = errors.New("session expired")
)

// CredentialBundle is the OAuth credential set attached to a session.
type CredentialBundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`

	// ExpiresAt is when the access token expires. A zero value marks a
	// legacy bundle with unknown expiry; such bundles are never
	// proactively refreshed.
	ExpiresAt time.Time `json:"expires_at"`
}

// Legacy reports whether the bundle predates expiry tracking.
func (b CredentialBundle) Legacy() bool {
	return b.ExpiresAt.IsZero()
}

// StaleAt reports whether the bundle needs a refresh at the given time:
// its expiry is known and falls within margin of now.
func (b CredentialBundle) StaleAt(now time.Time, margin time.Duration) bool {
	if b.Legacy() {
		return false
	}
	return !now.Add(margin).Before(b.ExpiresAt)
}

// Session represents an authenticated subject's session.
type Session struct {
	// ID is the opaque session token handed to the client.
	ID string `json:"id"`

	// SubjectID is the authenticated subject's provider identifier.
	SubjectID string `json:"subject_id"`

	// Username and AvatarURL are the cached provider profile.
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`

	// Provider names the identity provider that created this session.
	Provider string `json:"provider"`

	// Bundle holds the subject's OAuth credentials.
	Bundle CredentialBundle `json:"bundle"`

	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// IsExpired returns true if the session itself has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// New creates a session for a subject with the given lifetime.
func New(subjectID, username, avatarURL, provider string, bundle CredentialBundle, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:             generateSessionID(),
		SubjectID:      subjectID,
		Username:       username,
		AvatarURL:      avatarURL,
		Provider:       provider,
		Bundle:         bundle,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
	}
}

// generateSessionID generates a cryptographically secure session ID.
func generateSessionID() string {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		// Fallback to less secure but still random ID
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(bytes)
}

// Store defines the interface for session storage backends.
//
// The refresh-lock operations back the per-session refresh critical
// section: AcquireRefreshLock must be atomic per key and the lock must
// expire on its own after ttl so a crashed holder cannot wedge refresh
// for the session forever.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID.
	// Returns ErrSessionNotFound if not found.
	// Returns ErrSessionExpired if the session exists but is expired.
	Get(ctx context.Context, id string) (*Session, error)

	// UpdateBundle replaces the session's credential bundle, but only
	// if the new bundle's expiry is not older than the stored one.
	// A losing write is dropped silently: some other refresher already
	// installed newer credentials.
	UpdateBundle(ctx context.Context, id string, bundle CredentialBundle) error

	// Touch updates the session's last accessed time and extends expiry.
	Touch(ctx context.Context, id string, newExpiry time.Time) error

	// Delete removes a session by ID.
	// Does not return error if session doesn't exist.
	Delete(ctx context.Context, id string) error

	// DeleteBySubjectID removes all sessions for a subject.
	// Returns the count of deleted sessions.
	DeleteBySubjectID(ctx context.Context, subjectID string) (int, error)

	// CleanupExpired removes all expired sessions.
	// Returns the count of deleted sessions.
	CleanupExpired(ctx context.Context) (int, error)

	// AcquireRefreshLock takes the refresh lock for a session ID.
	// Returns true if this caller now holds the lock, false if another
	// holder has it. The lock self-expires after ttl.
	AcquireRefreshLock(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// ReleaseRefreshLock drops the refresh lock for a session ID.
	// Releasing an unheld lock is a no-op.
	ReleaseRefreshLock(ctx context.Context, id string) error
}

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing. For production, use BadgerStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    map[string]time.Time
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		locks:    make(map[string]time.Time),
	}
}

// Create stores a new session.
func (s *MemoryStore) Create(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

// Get retrieves a session by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		return nil, ErrSessionExpired
	}

	copied := *session
	return &copied, nil
}

// UpdateBundle replaces the credential bundle if it is not older than the
// stored one.
func (s *MemoryStore) UpdateBundle(ctx context.Context, id string, bundle CredentialBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	if bundleSupersedes(bundle, session.Bundle) {
		session.Bundle = bundle
	}
	return nil
}

// bundleSupersedes reports whether next may overwrite prev. Expiry is
// monotone: a refresh result whose expiry is behind what is already
// stored lost a race and must not clobber the newer credentials.
func bundleSupersedes(next, prev CredentialBundle) bool {
	if prev.ExpiresAt.IsZero() {
		return true
	}
	return !next.ExpiresAt.Before(prev.ExpiresAt)
}

// Touch updates the session's last accessed time and extends expiry.
func (s *MemoryStore) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	session.LastAccessedAt = time.Now()
	session.ExpiresAt = newExpiry
	return nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	delete(s.locks, id)
	return nil
}

// DeleteBySubjectID removes all sessions for a subject.
func (s *MemoryStore) DeleteBySubjectID(ctx context.Context, subjectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, session := range s.sessions {
		if session.SubjectID == subjectID {
			delete(s.sessions, id)
			delete(s.locks, id)
			count++
		}
	}
	return count, nil
}

// CleanupExpired removes all expired sessions.
func (s *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, session := range s.sessions {
		if session.IsExpired() {
			delete(s.sessions, id)
			delete(s.locks, id)
			count++
		}
	}
	return count, nil
}

// AcquireRefreshLock takes the refresh lock for a session ID.
func (s *MemoryStore) AcquireRefreshLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, held := s.locks[id]; held && now.Before(expiry) {
		return false, nil
	}
	s.locks[id] = now.Add(ttl)
	return true, nil
}

// ReleaseRefreshLock drops the refresh lock for a session ID.
func (s *MemoryStore) ReleaseRefreshLock(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, id)
	return nil
}

// StartCleanupRoutine starts a goroutine that periodically cleans up
// expired sessions. Returns a channel that should be closed to stop it.
func (s *MemoryStore) StartCleanupRoutine(interval time.Duration) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				//nolint:errcheck // Background cleanup - errors are non-critical
				s.CleanupExpired(context.Background())
			case <-done:
				return
			}
		}
	}()
	return done
}
