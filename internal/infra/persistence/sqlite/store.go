// Package sqlite persists the run ledger to a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"normative/internal/infra/persistence/memory"
	"normative/internal/ledger/core"
)

var _ core.Store = (*Store)(nil)

// Store persists the in-memory ledger to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful write.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the ledger database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "normative.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const (
	bucketReplicas = "replicas"
	bucketBalances = "balances"
)

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot core.Snapshot
	var found bool
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		found = true
		switch bucket {
		case bucketReplicas:
			if err := json.Unmarshal(payload, &snapshot.Replicas); err != nil {
				return fmt.Errorf("decode replicas: %w", err)
			}
		case bucketBalances:
			if err := json.Unmarshal(payload, &snapshot.Balances); err != nil {
				return fmt.Errorf("decode balances: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if found {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range []string{bucketReplicas, bucketBalances} {
		var data []byte
		switch bucket {
		case bucketReplicas:
			data, err = json.Marshal(snapshot.Replicas)
		case bucketBalances:
			data, err = json.Marshal(snapshot.Balances)
		}
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

// RecordReplica records run in memory, then snapshots state to SQLite.
func (s *Store) RecordReplica(ctx context.Context, run core.ReplicaRun) (core.ReplicaRun, error) {
	out, err := s.Store.RecordReplica(ctx, run)
	if err != nil {
		return out, err
	}
	return out, s.persist(ctx)
}

// RecordBalance records run in memory, then snapshots state to SQLite.
func (s *Store) RecordBalance(ctx context.Context, run core.BalanceRun) (core.BalanceRun, error) {
	out, err := s.Store.RecordBalance(ctx, run)
	if err != nil {
		return out, err
	}
	return out, s.persist(ctx)
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
