// Package core defines the run ledger records and the store contract shared by
// the memory, sqlite and postgres backends.
package core

import (
	"context"
	"fmt"
	"time"
)

// Status is the outcome of a recorded run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ReplicaRun records one bootstrap replica inference for a dataset.
// Re-running a replica replaces its record and bumps Attempts.
type ReplicaRun struct {
	Dataset    string    `json:"dataset"`
	Model      string    `json:"model"`
	Replica    int       `json:"replica"`
	Status     Status    `json:"status"`
	Subjects   int       `json:"subjects"`
	LatentDim  int       `json:"latent_dim"`
	MeanError  float64   `json:"mean_error"`
	Seed       int64     `json:"seed"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Key identifies the replica across attempts.
func (r ReplicaRun) Key() string {
	return fmt.Sprintf("%s/%s/%03d", r.Dataset, r.Model, r.Replica)
}

// RemovedSubject is one trimming step of a balancing run.
type RemovedSubject struct {
	ParticipantID string  `json:"participant_id"`
	ImageID       string  `json:"image_id"`
	Group         int     `json:"group"`
	Age           float64 `json:"age"`
}

// BalanceRun records one cohort balancing run.
type BalanceRun struct {
	ID       string           `json:"id"`
	Dataset  string           `json:"dataset"`
	Input    int              `json:"input_subjects"`
	Retained int              `json:"retained_subjects"`
	Removed  []RemovedSubject `json:"removed"`
	// ChiSquareP and ANOVAP are nil when the omnibus test was undefined.
	ChiSquareP *float64  `json:"chi_square_p,omitempty"`
	ANOVAP     *float64  `json:"anova_p,omitempty"`
	Output     string    `json:"output"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot is the full ledger state, used by durable backends.
type Snapshot struct {
	Replicas map[string]ReplicaRun `json:"replicas"`
	Balances []BalanceRun          `json:"balances"`
}

// Store persists run records.
type Store interface {
	RecordReplica(ctx context.Context, run ReplicaRun) (ReplicaRun, error)
	RecordBalance(ctx context.Context, run BalanceRun) (BalanceRun, error)
	// Replicas lists replica runs for dataset ordered by model then replica.
	// An empty dataset lists all.
	Replicas(ctx context.Context, dataset string) ([]ReplicaRun, error)
	// Balances lists balancing runs for dataset in recording order.
	Balances(ctx context.Context, dataset string) ([]BalanceRun, error)
	Close() error
}
