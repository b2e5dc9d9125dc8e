// Package ledger records bootstrap inference and balancing runs. Backends live
// under internal/infra/persistence; callers depend on the Store interface.
package ledger

import (
	"context"
	"fmt"

	"normative/internal/infra/persistence/memory"
	"normative/internal/infra/persistence/postgres"
	"normative/internal/infra/persistence/sqlite"
	"normative/internal/ledger/core"
)

type (
	// Status is the outcome of a recorded run.
	Status = core.Status
	// ReplicaRun records one replica inference.
	ReplicaRun = core.ReplicaRun
	// BalanceRun records one balancing run.
	BalanceRun = core.BalanceRun
	// RemovedSubject is one trimming step.
	RemovedSubject = core.RemovedSubject
	// Store persists run records.
	Store = core.Store
)

const (
	StatusSucceeded = core.StatusSucceeded
	StatusFailed    = core.StatusFailed
)

// Driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects a ledger backend.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the Store for opts.Driver. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite, "":
		return sqlite.NewStore(opts.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown ledger driver %s", opts.Driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memory.NewStore() }

// Completed returns the replica indexes of dataset and model that succeeded.
func Completed(ctx context.Context, store Store, dataset, model string) (map[int]bool, error) {
	runs, err := store.Replicas(ctx, dataset)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool)
	for _, r := range runs {
		if r.Model == model && r.Status == StatusSucceeded {
			done[r.Replica] = true
		}
	}
	return done, nil
}
