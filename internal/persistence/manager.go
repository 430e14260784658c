// Package persistence orchestrates the WAL and snapshot store into the
// log -> checkpoint -> snapshot -> truncate durability pipeline, and
// exposes the recovery entry point used at process start.
package persistence

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vectordb/internal/snapshot"
	"vectordb/internal/wal"
)

// StateProvider is implemented by whatever owns the full recoverable
// state (the top-level vectordb.System). State returns the current state
// to snapshot; NewState returns an empty, pointer-typed instance of that
// same shape for the snapshot store to decode into; RestoreState
// re-hydrates the repositories from a decoded instance; ReplayOperation
// applies one WAL-logged mutation during recovery.
type StateProvider interface {
	State() (any, error)
	NewState() any
	RestoreState(state any) error
	ReplayOperation(operationType, resourceID string, data json.RawMessage) error
}

// Manager wires a WAL and a snapshot Store together and coordinates when
// each runs.
type Manager struct {
	wal      *wal.WAL
	store    *snapshot.Store
	provider StateProvider

	isRecovering     atomic.Bool
	opsSinceCheckpoint atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager wires a Manager onto an already-open WAL and snapshot Store.
func NewManager(w *wal.WAL, store *snapshot.Store, provider StateProvider) *Manager {
	return &Manager{wal: w, store: store, provider: provider, stopCh: make(chan struct{})}
}

// LogOperation appends one mutation to the WAL. During recovery replay
// this is a no-op (returns -1) so replayed operations are never re-logged.
func (m *Manager) LogOperation(operationType, resourceID string, data any) (int64, error) {
	if m.isRecovering.Load() {
		return -1, nil
	}
	seq, err := m.wal.Append(operationType, resourceID, data)
	if err != nil {
		return 0, fmt.Errorf("log operation: %w", err)
	}
	m.opsSinceCheckpoint.Add(1)
	return int64(seq), nil
}

// CreateSnapshot runs the full pipeline: checkpoint the WAL, collect state
// from the provider, write the snapshot, prune old generations, and
// truncate the WAL up to the checkpointed sequence.
func (m *Manager) CreateSnapshot(retain int) (snapshot.Meta, error) {
	if err := m.wal.Checkpoint(); err != nil {
		return snapshot.Meta{}, fmt.Errorf("checkpoint before snapshot: %w", err)
	}
	seq := m.wal.CurrentSequence()

	state, err := m.provider.State()
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("collect state for snapshot: %w", err)
	}

	id := uuid.NewString()
	meta, err := m.store.Create(id, seq, state)
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("create snapshot: %w", err)
	}

	if err := m.store.CleanupOld(retain); err != nil {
		return snapshot.Meta{}, fmt.Errorf("cleanup old snapshots: %w", err)
	}
	if err := m.wal.Truncate(seq); err != nil {
		return snapshot.Meta{}, fmt.Errorf("truncate wal after snapshot: %w", err)
	}
	m.opsSinceCheckpoint.Store(0)
	return meta, nil
}

// RecoverState loads the latest snapshot (if any), restores it through the
// provider, then replays every WAL entry after the snapshot's sequence.
// LogOperation is suppressed for the whole call so replay never re-appends
// to the WAL it is reading from.
func (m *Manager) RecoverState() (recoveredFromSnapshot bool, walEntriesReplayed int, err error) {
	m.isRecovering.Store(true)
	defer m.isRecovering.Store(false)

	var fromSeq uint64
	meta, ok, err := m.store.Latest()
	if err != nil {
		return false, 0, fmt.Errorf("find latest snapshot: %w", err)
	}
	if ok {
		state := m.provider.NewState()
		if _, err := m.store.Load(meta.ID, state); err != nil {
			return false, 0, fmt.Errorf("load snapshot %s: %w", meta.ID, err)
		}
		if err := m.provider.RestoreState(state); err != nil {
			return false, 0, fmt.Errorf("restore snapshot state: %w", err)
		}
		fromSeq = meta.Sequence + 1
		recoveredFromSnapshot = true
	}

	entries, err := m.wal.Read(fromSeq)
	if err != nil {
		return recoveredFromSnapshot, 0, fmt.Errorf("read wal tail: %w", err)
	}
	for _, e := range entries {
		payload, err := e.DecodePayload()
		if err != nil {
			return recoveredFromSnapshot, walEntriesReplayed, fmt.Errorf("decode wal entry %d: %w", e.Sequence, err)
		}
		if err := m.provider.ReplayOperation(payload.OperationType, payload.ResourceID, payload.Data); err != nil {
			return recoveredFromSnapshot, walEntriesReplayed, fmt.Errorf("replay wal entry %d: %w", e.Sequence, err)
		}
		walEntriesReplayed++
	}
	return recoveredFromSnapshot, walEntriesReplayed, nil
}

// StartBackgroundLoops launches the auto-checkpoint and auto-snapshot
// goroutines; call Stop to cancel them cleanly.
func (m *Manager) StartBackgroundLoops(checkpointInterval time.Duration, snapshotInterval time.Duration, retain int) {
	m.wg.Add(2)
	go m.autoCheckpointLoop(checkpointInterval)
	go m.autoSnapshotLoop(snapshotInterval, retain)
}

func (m *Manager) autoCheckpointLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.opsSinceCheckpoint.Load() > 0 {
				if err := m.wal.Checkpoint(); err != nil {
					continue
				}
				m.opsSinceCheckpoint.Store(0)
			}
		}
	}
}

func (m *Manager) autoSnapshotLoop(interval time.Duration, retain int) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			_, _ = m.CreateSnapshot(retain)
		}
	}
}

// Stop cancels the background loops and waits for them to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}
