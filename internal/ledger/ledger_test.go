package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, Options{Driver: DriverMemory})
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	lite, err := Open(ctx, Options{SQLitePath: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	require.NoError(t, lite.Close())

	_, err = Open(ctx, Options{Driver: "mysql"})
	require.Error(t, err)
}

func TestCompleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	for _, run := range []ReplicaRun{
		{Dataset: "ADNI", Model: "supervised_aae", Replica: 0, Status: StatusSucceeded},
		{Dataset: "ADNI", Model: "supervised_aae", Replica: 1, Status: StatusFailed},
		{Dataset: "ADNI", Model: "other", Replica: 2, Status: StatusSucceeded},
		{Dataset: "AIBL", Model: "supervised_aae", Replica: 3, Status: StatusSucceeded},
	} {
		_, err := store.RecordReplica(ctx, run)
		require.NoError(t, err)
	}
	done, err := Completed(ctx, store, "ADNI", "supervised_aae")
	require.NoError(t, err)
	require.Equal(t, map[int]bool{0: true}, done)
}
