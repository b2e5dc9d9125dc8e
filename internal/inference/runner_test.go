package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"normative/internal/blob"
	"normative/internal/cohort"
	"normative/internal/ledger"
	"normative/internal/model"
	"normative/internal/observability"
)

const modelName = "supervised_aae"

func readTable(t *testing.T, store blob.Store, replica int, name string) string {
	t.Helper()
	b, err := blob.ReadAll(context.Background(), store, OutputDir(modelName, replica, "ADNI")+"/"+name)
	require.NoError(t, err)
	return string(b)
}

// identityArtifacts passes features straight through: no encoder layers and
// a decoder that keeps the latent block and drops the conditioning.
func identityArtifacts(features int, ages []float64) model.Artifacts {
	cond := len(ages) + 2
	weights := make([][]float64, features+cond)
	for i := range weights {
		weights[i] = make([]float64, features)
		if i < features {
			weights[i][i] = 1
		}
	}
	return model.Artifacts{
		Decoder: model.Dense{Layers: []model.Layer{{Weights: weights, Bias: make([]float64, features), Activation: model.Linear}}},
		Scaler:  model.Scaler{Center: make([]float64, features), Scale: make([]float64, features)},
		Age:     model.OneHot{Categories: ages},
		Gender:  model.OneHot{Categories: []float64{0, 1}},
	}
}

func tenSubjects(t *testing.T) (*cohort.Cohort, []float64) {
	t.Helper()
	var subjects []cohort.Subject
	var ages []float64
	for i := 0; i < 10; i++ {
		age := 60 + float64(i)*1.5
		ages = append(ages, age)
		subjects = append(subjects, cohort.Subject{
			ParticipantID: fmt.Sprintf("sub-%02d", 9-i),
			ImageID:       fmt.Sprintf("I%02d", i),
			Age:           age,
			Gender:        i % 2,
			ICV:           1500000 + float64(i)*1000,
			Features:      []float64{3000 + float64(i)*17, 4000 - float64(i)*3, 123.5 * float64(i+1)},
		})
	}
	c, err := cohort.New(subjects)
	require.NoError(t, err)
	return c, ages
}

func seedModels(t *testing.T, store blob.Store, a model.Artifacts, replicas ...int) {
	t.Helper()
	for _, r := range replicas {
		require.NoError(t, model.Save(context.Background(), store, modelName, r, a))
	}
}

func baseOptions(replicas ...int) Options {
	return Options{Dataset: "ADNI", Model: modelName, Features: []string{"A", "B", "C"}, Replicas: replicas, Seed: 42}
}

func TestRunner_HandComputedError(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c, err := cohort.New([]cohort.Subject{{ParticipantID: "sub-1", Age: 70, Gender: 1, ICV: 4, Features: []float64{2, 4}}})
	require.NoError(t, err)
	seedModels(t, store, model.Artifacts{
		Decoder: model.Dense{Layers: []model.Layer{{
			// inputs: latent0, latent1, age70, gender0, gender1
			Weights: [][]float64{{1, 0}, {0, 0}, {0, 0.5}, {0, 0}, {0, 0}},
			Bias:    []float64{0.25, 0},
		}}},
		Scaler: model.Scaler{Center: []float64{0, 0}, Scale: []float64{1, 1}},
		Age:    model.OneHot{Categories: []float64{70}},
		Gender: model.OneHot{Categories: []float64{0, 1}},
	}, 0)

	r := &Runner{Models: &model.BlobLoader{Store: store, Model: modelName}, Outputs: store}
	opts := baseOptions(0)
	opts.Features = []string{"A", "B"}
	sum, err := r.Run(ctx, c, opts)
	require.NoError(t, err)
	require.Len(t, sum.Completed, 1)
	// scaled [0.5 1], reconstruction [0.75 0.5]: ((-0.25)^2 + 0.5^2) / 2
	require.Equal(t, []float64{0.15625}, sum.Completed[0].Errors)
	require.Equal(t, 2, sum.Completed[0].LatentDim)

	require.Equal(t, "participant_id,A,B\nsub-1,0.5,1\n", readTable(t, store, 0, NormalizedTable))
	require.Equal(t, "participant_id,A,B\nsub-1,0.75,0.5\n", readTable(t, store, 0, ReconstructionTable))
	require.Equal(t, "participant_id,0,1\nsub-1,0.5,1\n", readTable(t, store, 0, EncodedTable))
	require.Equal(t, "participant_id,Reconstruction error\nsub-1,0.15625\n", readTable(t, store, 0, ReconstructionErrorTable))
}

func TestRunner_IdentityEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c, ages := tenSubjects(t)
	seedModels(t, store, identityArtifacts(3, ages), 0)
	metrics := observability.NewRecorder(false)
	l := ledger.NewMemory()
	r := &Runner{Models: &model.BlobLoader{Store: store, Model: modelName}, Outputs: store, Ledger: l, Metrics: metrics}

	sum, err := r.Run(ctx, c, baseOptions(0))
	require.NoError(t, err)
	require.Len(t, sum.Completed, 1)
	res := sum.Completed[0]
	require.Equal(t, 10, res.Subjects)
	require.Len(t, res.Errors, 10)
	for i, e := range res.Errors {
		require.InDelta(t, 0, e, 1e-12, "subject %d", i)
	}

	lines := strings.Split(strings.TrimSpace(readTable(t, store, 0, ReconstructionErrorTable)), "\n")
	require.Len(t, lines, 11)
	var ids []string
	for _, line := range lines[1:] {
		ids = append(ids, strings.SplitN(line, ",", 2)[0])
	}
	if diff := cmp.Diff(c.IDs(), ids); diff != "" {
		t.Fatalf("row order (-cohort +table):\n%s", diff)
	}
	require.Equal(t, readTable(t, store, 0, NormalizedTable), readTable(t, store, 0, ReconstructionTable))

	runs, err := l.Replicas(ctx, "ADNI")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, ledger.StatusSucceeded, runs[0].Status)
	require.Equal(t, int64(42), runs[0].Seed)
	require.Equal(t, 3, runs[0].LatentDim)

	n, err := testutil.GatherAndCount(metrics.Registry(), "normative_replica_mean_reconstruction_error")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunner_FailFast(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c, ages := tenSubjects(t)
	seedModels(t, store, identityArtifacts(3, ages), 0, 1, 3)
	l := ledger.NewMemory()
	var seen []int
	r := &Runner{
		Models:    &model.BlobLoader{Store: store, Model: modelName},
		Outputs:   store,
		Ledger:    l,
		OnReplica: func(replica int, _ error) { seen = append(seen, replica) },
	}
	sum, err := r.Run(ctx, c, baseOptions(0, 1, 2, 3))
	var rerr *ReplicaError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	require.Equal(t, 2, rerr.Replica)
	require.ErrorIs(t, err, blob.ErrNotFound)
	require.Equal(t, []int{0, 1, 2}, seen)
	require.Len(t, sum.Completed, 2)

	_, err = store.Head(ctx, OutputDir(modelName, 3, "ADNI")+"/"+NormalizedTable)
	require.ErrorIs(t, err, blob.ErrNotFound, "replica after the failure must not run")

	runs, err := l.Replicas(ctx, "ADNI")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, ledger.StatusFailed, runs[2].Status)
	require.Contains(t, runs[2].Error, "encoder.json")
}

func TestRunner_KeepGoingAndSkipCompleted(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c, ages := tenSubjects(t)
	seedModels(t, store, identityArtifacts(3, ages), 0, 1, 3)
	l := ledger.NewMemory()
	r := &Runner{Models: &model.BlobLoader{Store: store, Model: modelName}, Outputs: store, Ledger: l}

	opts := baseOptions(0, 1, 2, 3)
	opts.KeepGoing = true
	sum, err := r.Run(ctx, c, opts)
	require.Error(t, err)
	var rerr *ReplicaError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, 2, rerr.Replica)
	require.Len(t, sum.Completed, 3)
	require.Len(t, sum.Failed, 1)
	require.Equal(t, 3, sum.Completed[2].Replica)

	// Provide the missing replica and re-run only what did not succeed.
	seedModels(t, store, identityArtifacts(3, ages), 2)
	opts.SkipCompleted = true
	sum, err = r.Run(ctx, c, opts)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 3}, sum.Skipped)
	require.Len(t, sum.Completed, 1)
	require.Equal(t, 2, sum.Completed[0].Replica)

	runs, err := l.Replicas(ctx, "ADNI")
	require.NoError(t, err)
	require.Len(t, runs, 4)
	require.Equal(t, ledger.StatusSucceeded, runs[2].Status)
	require.Equal(t, 2, runs[2].Attempts)
	require.Equal(t, 1, runs[0].Attempts)
}

func TestRunner_ParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	c, ages := tenSubjects(t)
	run := func(parallel int) blob.Store {
		store := blob.NewMemory()
		seedModels(t, store, identityArtifacts(3, ages), 0, 1, 2, 3, 4, 5)
		r := &Runner{Models: &model.BlobLoader{Store: store, Model: modelName}, Outputs: store}
		opts := baseOptions(0, 1, 2, 3, 4, 5)
		opts.Parallel = parallel
		sum, err := r.Run(ctx, c, opts)
		require.NoError(t, err)
		require.Len(t, sum.Completed, 6)
		for i, res := range sum.Completed {
			require.Equal(t, i, res.Replica)
		}
		return store
	}
	seq, par := run(1), run(4)
	for replica := 0; replica < 6; replica++ {
		for _, name := range []string{NormalizedTable, ReconstructionTable, EncodedTable, ReconstructionErrorTable} {
			require.Equal(t, readTable(t, seq, replica, name), readTable(t, par, replica, name))
		}
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := blob.NewMemory()
	c, ages := tenSubjects(t)
	seedModels(t, store, identityArtifacts(3, ages), 0)
	r := &Runner{Models: &model.BlobLoader{Store: store, Model: modelName}, Outputs: store}
	sum, err := r.Run(ctx, c, baseOptions(0))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, sum.Completed)
}

func TestRunner_InvalidInput(t *testing.T) {
	ctx := context.Background()
	r := &Runner{Models: &model.BlobLoader{Store: blob.NewMemory(), Model: modelName}, Outputs: blob.NewMemory()}
	empty, err := cohort.New(nil)
	require.NoError(t, err)
	_, err = r.Run(ctx, empty, baseOptions(0))
	require.ErrorContains(t, err, "cohort is empty")

	zeroICV, err := cohort.New([]cohort.Subject{{ParticipantID: "s", Features: []float64{1, 2, 3}}})
	require.NoError(t, err)
	_, err = r.Run(ctx, zeroICV, baseOptions(0))
	require.ErrorContains(t, err, "not positive")

	short, err := cohort.New([]cohort.Subject{{ParticipantID: "s", ICV: 1, Features: []float64{1}}})
	require.NoError(t, err)
	_, err = r.Run(ctx, short, baseOptions(0))
	require.ErrorContains(t, err, "1 features, want 3")
}

func TestRunner_ShapeMismatch(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c, ages := tenSubjects(t)
	a := identityArtifacts(3, ages)
	a.Decoder = model.Dense{}
	seedModels(t, store, a, 0)
	r := &Runner{Models: &model.BlobLoader{Store: store, Model: modelName}, Outputs: store}
	_, err := r.Run(ctx, c, baseOptions(0))
	require.ErrorContains(t, err, "decoder: output is 10x15, want 10x3")
}

func TestParseReplicas(t *testing.T) {
	got, err := ParseReplicas("", 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, got)

	got, err = ParseReplicas(" 8-9, 2,0-1,9 ", 10)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 8, 9}, got)

	for _, bad := range []string{"x", "3-1", "0-10", "-1", "1-y", ",", "10"} {
		if _, err := ParseReplicas(bad, 10); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
	_, err = ParseReplicas("", 0)
	require.Error(t, err)
}
