// Package recovery provides the process-start recovery entry point and
// the consistency/backup reporting the original implementation exposes
// alongside it.
package recovery

import (
	"fmt"
	"time"

	"vectordb/internal/persistence"
	"vectordb/internal/snapshot"
)

// Report summarizes one recovery run.
type Report struct {
	RecoveryTime           time.Duration
	RecoveredFromSnapshot  bool
	WALEntriesReplayed     int
}

// ConsistencyReport summarizes the outcome of VerifyConsistency.
type ConsistencyReport struct {
	Consistent bool
	Issues     []string
	Stats      map[string]int
	CheckedAt  time.Time
}

// Service drives recovery and backup/consistency reporting on top of a
// persistence Manager.
type Service struct {
	manager *persistence.Manager
	counts  func() map[string]int
}

// NewService wires a Service onto a persistence Manager. countsFn reports
// current per-repository entity counts, used by VerifyConsistency.
func NewService(manager *persistence.Manager, countsFn func() map[string]int) *Service {
	return &Service{manager: manager, counts: countsFn}
}

// RecoverSystem loads the latest snapshot (if any) and replays the WAL
// tail on top of it, returning a timed summary of what was recovered.
func (s *Service) RecoverSystem() (Report, error) {
	start := time.Now()
	recoveredFromSnapshot, replayed, err := s.manager.RecoverState()
	if err != nil {
		return Report{}, fmt.Errorf("recover system: %w", err)
	}
	return Report{
		RecoveryTime:          time.Since(start),
		RecoveredFromSnapshot: recoveredFromSnapshot,
		WALEntriesReplayed:    replayed,
	}, nil
}

// CreateBackup is a plain wrapper over CreateSnapshot, named the way the
// original implementation exposes it to operators as a distinct intent
// from the automatic snapshot loop.
func (s *Service) CreateBackup(retain int) (snapshot.Meta, error) {
	meta, err := s.manager.CreateSnapshot(retain)
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("create backup: %w", err)
	}
	return meta, nil
}

// VerifyConsistency reports current entity counts and whether anything
// about the persisted state looks wrong. Today this is just a structured
// count report: there is no cross-repository invariant yet whose
// violation would be flagged as an issue, but the shape lets one be added
// without changing callers.
func (s *Service) VerifyConsistency() ConsistencyReport {
	stats := s.counts()
	return ConsistencyReport{
		Consistent: true,
		Issues:     nil,
		Stats:      stats,
		CheckedAt:  time.Now(),
	}
}
