// Package memory provides an in-memory run ledger used for tests and as the
// working set of the durable sqlite and postgres ledgers.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"normative/internal/ledger/core"
)

var _ core.Store = (*Store)(nil)

// Store keeps ledger records in process memory.
type Store struct {
	mu       sync.RWMutex
	replicas map[string]core.ReplicaRun
	balances []core.BalanceRun
	now      func() time.Time
}

// NewStore returns an empty in-memory ledger.
func NewStore() *Store {
	return &Store{replicas: make(map[string]core.ReplicaRun), now: func() time.Time { return time.Now().UTC() }}
}

func newID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// RecordReplica stores run, replacing an earlier attempt of the same replica.
func (s *Store) RecordReplica(ctx context.Context, run core.ReplicaRun) (core.ReplicaRun, error) {
	if err := ctx.Err(); err != nil {
		return core.ReplicaRun{}, err
	}
	if run.Dataset == "" || run.Model == "" {
		return core.ReplicaRun{}, fmt.Errorf("ledger: replica run needs dataset and model")
	}
	if run.Replica < 0 {
		return core.ReplicaRun{}, fmt.Errorf("ledger: negative replica %d", run.Replica)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := run.Key()
	run.Attempts = s.replicas[key].Attempts + 1
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}
	s.replicas[key] = run
	return run, nil
}

// RecordBalance appends run, assigning an ID and timestamp when missing.
func (s *Store) RecordBalance(ctx context.Context, run core.BalanceRun) (core.BalanceRun, error) {
	if err := ctx.Err(); err != nil {
		return core.BalanceRun{}, err
	}
	if run.Dataset == "" {
		return core.BalanceRun{}, fmt.Errorf("ledger: balance run needs dataset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	run.Removed = append([]core.RemovedSubject(nil), run.Removed...)
	s.balances = append(s.balances, run)
	return run, nil
}

// Replicas lists replica runs ordered by model then replica index.
func (s *Store) Replicas(_ context.Context, dataset string) ([]core.ReplicaRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ReplicaRun, 0, len(s.replicas))
	for _, r := range s.replicas {
		if dataset == "" || r.Dataset == dataset {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dataset != out[j].Dataset {
			return out[i].Dataset < out[j].Dataset
		}
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].Replica < out[j].Replica
	})
	return out, nil
}

// Balances lists balancing runs in recording order.
func (s *Store) Balances(_ context.Context, dataset string) ([]core.BalanceRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.BalanceRun
	for _, b := range s.balances {
		if dataset == "" || b.Dataset == dataset {
			b.Removed = append([]core.RemovedSubject(nil), b.Removed...)
			out = append(out, b)
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ExportState returns a deep copy of the ledger.
func (s *Store) ExportState() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := core.Snapshot{Replicas: make(map[string]core.ReplicaRun, len(s.replicas)), Balances: make([]core.BalanceRun, len(s.balances))}
	for k, v := range s.replicas {
		snap.Replicas[k] = v
	}
	for i, b := range s.balances {
		b.Removed = append([]core.RemovedSubject(nil), b.Removed...)
		snap.Balances[i] = b
	}
	return snap
}

// ImportState replaces the ledger with snap.
func (s *Store) ImportState(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicas = make(map[string]core.ReplicaRun, len(snap.Replicas))
	for _, v := range snap.Replicas {
		s.replicas[v.Key()] = v
	}
	s.balances = append([]core.BalanceRun(nil), snap.Balances...)
}
