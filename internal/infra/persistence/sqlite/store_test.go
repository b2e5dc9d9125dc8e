package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"normative/internal/ledger/core"
)

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Path() != path || s.DB() == nil {
		t.Fatalf("unexpected accessors")
	}
	if _, err := s.RecordReplica(ctx, core.ReplicaRun{Dataset: "ADNI", Model: "supervised_aae", Replica: 3, Status: core.StatusSucceeded, Subjects: 10, MeanError: 0.25}); err != nil {
		t.Fatalf("record replica: %v", err)
	}
	if _, err := s.RecordBalance(ctx, core.BalanceRun{Dataset: "ADNI", Input: 12, Retained: 10, Removed: []core.RemovedSubject{{ParticipantID: "sub-1", Group: 27, Age: 55}}}); err != nil {
		t.Fatalf("record balance: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	runs, err := reopened.Replicas(ctx, "ADNI")
	if err != nil || len(runs) != 1 {
		t.Fatalf("replicas: %v %+v", err, runs)
	}
	if runs[0].MeanError != 0.25 || runs[0].Attempts != 1 {
		t.Fatalf("unexpected replica %+v", runs[0])
	}
	balances, err := reopened.Balances(ctx, "ADNI")
	if err != nil || len(balances) != 1 || balances[0].Removed[0].ParticipantID != "sub-1" {
		t.Fatalf("balances: %v %+v", err, balances)
	}
	next, err := reopened.RecordReplica(ctx, core.ReplicaRun{Dataset: "ADNI", Model: "supervised_aae", Replica: 3, Status: core.StatusSucceeded})
	if err != nil || next.Attempts != 2 {
		t.Fatalf("expected second attempt, got %+v %v", next, err)
	}
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.RecordReplica(context.Background(), core.ReplicaRun{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := s.RecordBalance(context.Background(), core.BalanceRun{}); err == nil {
		t.Fatalf("expected validation error")
	}
}
