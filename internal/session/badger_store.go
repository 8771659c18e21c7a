// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tenantgate/tenantgate/internal/logging"
)

// Key prefixes for BadgerDB storage
const (
	sessionKeyPrefix = "session:"
	subjectKeyPrefix = "session_subject:"
	lockKeyPrefix    = "refresh_lock:"
)

// BadgerStore implements Store using BadgerDB for durable storage.
// Credential bundles are encrypted at rest when a cipher is configured.
type BadgerStore struct {
	db     *badger.DB
	cipher *BundleCipher
}

// NewBadgerStore creates a BadgerDB-backed session store. cipher may be
// nil to store bundles in the clear (development only).
func NewBadgerStore(db *badger.DB, cipher *BundleCipher) *BadgerStore {
	return &BadgerStore{db: db, cipher: cipher}
}

// OpenBadger opens the session database at path with badger's own
// logging silenced.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	return db, nil
}

func (s *BadgerStore) marshalSession(session *Session) ([]byte, error) {
	stored := *session
	bundle, err := s.cipher.EncryptBundle(session.Bundle)
	if err != nil {
		return nil, err
	}
	stored.Bundle = bundle

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func (s *BadgerStore) unmarshalSession(data []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	bundle, err := s.cipher.DecryptBundle(session.Bundle)
	if err != nil {
		return nil, err
	}
	session.Bundle = bundle
	return &session, nil
}

// Create stores a new session.
func (s *BadgerStore) Create(ctx context.Context, session *Session) error {
	data, err := s.marshalSession(session)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		sessionKey := []byte(sessionKeyPrefix + session.ID)
		if err := txn.Set(sessionKey, data); err != nil {
			return fmt.Errorf("set session: %w", err)
		}

		// Subject-to-session mapping for efficient bulk lookup
		subjectKey := []byte(subjectKeyPrefix + session.SubjectID + ":" + session.ID)
		if err := txn.Set(subjectKey, []byte(session.ID)); err != nil {
			return fmt.Errorf("set subject mapping: %w", err)
		}

		return nil
	})
}

// Get retrieves a session by ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Session, error) {
	var session *Session

	err := s.db.View(func(txn *badger.Txn) error {
		key := []byte(sessionKeyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		return item.Value(func(val []byte) error {
			var uerr error
			session, uerr = s.unmarshalSession(val)
			return uerr
		})
	})

	if err != nil {
		return nil, err
	}

	if session.IsExpired() {
		return nil, ErrSessionExpired
	}

	return session, nil
}

// UpdateBundle replaces the credential bundle if it is not older than the
// stored one. The read and the write share one transaction so a racing
// refresher cannot interleave between them.
func (s *BadgerStore) UpdateBundle(ctx context.Context, id string, bundle CredentialBundle) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(sessionKeyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		var session *Session
		if err := item.Value(func(val []byte) error {
			var uerr error
			session, uerr = s.unmarshalSession(val)
			return uerr
		}); err != nil {
			return err
		}

		if !bundleSupersedes(bundle, session.Bundle) {
			return nil
		}
		session.Bundle = bundle

		data, err := s.marshalSession(session)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})

	if errors.Is(err, badger.ErrConflict) {
		// A concurrent writer won; its bundle is at least as new.
		logging.Debug().Str("session_id", id).Msg("bundle update lost write race")
		return nil
	}
	return err
}

// Touch updates the session's last accessed time and extends expiry.
func (s *BadgerStore) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(sessionKeyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		var session *Session
		if err := item.Value(func(val []byte) error {
			var uerr error
			session, uerr = s.unmarshalSession(val)
			return uerr
		}); err != nil {
			return err
		}

		session.LastAccessedAt = time.Now()
		session.ExpiresAt = newExpiry

		data, err := s.marshalSession(session)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Delete removes a session by ID.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	// Read first to find the subject mapping.
	var subjectID string
	err := s.db.View(func(txn *badger.Txn) error {
		key := []byte(sessionKeyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil // Already deleted
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var session Session
			if err := json.Unmarshal(val, &session); err != nil {
				return err
			}
			subjectID = session.SubjectID
			return nil
		})
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		sessionKey := []byte(sessionKeyPrefix + id)
		if err := txn.Delete(sessionKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}

		if subjectID != "" {
			subjectKey := []byte(subjectKeyPrefix + subjectID + ":" + id)
			if err := txn.Delete(subjectKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete subject mapping: %w", err)
			}
		}

		lockKey := []byte(lockKeyPrefix + id)
		if err := txn.Delete(lockKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete refresh lock: %w", err)
		}

		return nil
	})
}

// DeleteBySubjectID removes all sessions for a subject.
func (s *BadgerStore) DeleteBySubjectID(ctx context.Context, subjectID string) (int, error) {
	var sessionIDs []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(subjectKeyPrefix + subjectID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				sessionIDs = append(sessionIDs, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list subject sessions: %w", err)
	}

	count := 0
	for _, id := range sessionIDs {
		if err := s.Delete(ctx, id); err != nil {
			continue
		}
		count++
	}

	return count, nil
}

// CleanupExpired removes all expired sessions.
func (s *BadgerStore) CleanupExpired(ctx context.Context) (int, error) {
	var expiredIDs []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var session Session
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &session)
			})
			if err != nil {
				continue
			}

			if session.IsExpired() {
				expiredIDs = append(expiredIDs, session.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	count := 0
	for _, id := range expiredIDs {
		if err := s.Delete(ctx, id); err != nil {
			continue
		}
		count++
	}

	return count, nil
}

// AcquireRefreshLock takes the refresh lock for a session ID. The lock
// entry carries a Badger TTL, so a crashed holder's lock evaporates on
// its own.
func (s *BadgerStore) AcquireRefreshLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(lockKeyPrefix + id)
		_, err := txn.Get(key)
		if err == nil {
			return nil // Held by someone else
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get refresh lock: %w", err)
		}

		entry := badger.NewEntry(key, []byte("1")).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set refresh lock: %w", err)
		}
		acquired = true
		return nil
	})

	if errors.Is(err, badger.ErrConflict) {
		// Another caller acquired between our read and commit.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseRefreshLock drops the refresh lock for a session ID.
func (s *BadgerStore) ReleaseRefreshLock(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(lockKeyPrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) || errors.Is(err, badger.ErrConflict) {
		return nil
	}
	return err
}

// Count returns the total number of sessions in the store.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}
