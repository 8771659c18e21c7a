// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package audit

import (
	"sync"

	"github.com/tenantgate/tenantgate/internal/logging"
)

// Mirror asynchronously echoes persisted audit entries to the
// structured log so operators can tail the trail without querying the
// database. Persistence happens elsewhere, in the mutation's own
// transaction; the mirror is observability only and drops entries
// rather than blocking a mutation.
type Mirror struct {
	entryChan chan *Entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// NewMirror starts a mirror with the given buffer size.
func NewMirror(bufferSize int) *Mirror {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	m := &Mirror{
		entryChan: make(chan *Entry, bufferSize),
		stopChan:  make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Record enqueues an entry for logging. Never blocks.
func (m *Mirror) Record(entry *Entry) {
	if m == nil || entry == nil {
		return
	}
	select {
	case m.entryChan <- entry:
	default:
		droppedEntries.Inc()
	}
}

// Close drains pending entries and stops the mirror.
func (m *Mirror) Close() {
	m.once.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for {
		select {
		case entry := <-m.entryChan:
			m.log(entry)
		case <-m.stopChan:
			// Drain what is buffered, then exit.
			for {
				select {
				case entry := <-m.entryChan:
					m.log(entry)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) log(entry *Entry) {
	logging.Info().
		Str("audit_id", entry.ID).
		Str("tenant_id", entry.TenantID).
		Str("action", string(entry.Action)).
		Str("actor_id", entry.ActorID).
		Str("target_id", entry.TargetID).
		Time("at", entry.Timestamp).
		Msg("audit")
}
