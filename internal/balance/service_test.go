package balance

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"normative/internal/blob"
	"normative/internal/cohort"
	"normative/internal/ledger"
	"normative/internal/observability"
)

func seedDataset(t *testing.T, subjects []cohort.Subject) (blob.Store, blob.Store) {
	t.Helper()
	ctx := context.Background()
	var parts, fs, ids strings.Builder
	parts.WriteString("participant_id\tImage_ID\tAge\tGender\tDiagn\n")
	fs.WriteString("Image_ID,EstimatedTotalIntraCranialVol,A\n")
	ids.WriteString("Image_ID\n")
	for _, s := range subjects {
		fmt.Fprintf(&parts, "%s\t%s\t%g\t%d\t%d\n", s.ParticipantID, s.ImageID, s.Age, s.Gender, s.Diagnosis)
		fmt.Fprintf(&fs, "%s,%g,%g\n", s.ImageID, s.ICV, s.Features[0])
		fmt.Fprintf(&ids, "%s\n", s.ImageID)
	}
	data, outputs := blob.NewMemory(), blob.NewMemory()
	_, err := blob.PutBytes(ctx, data, cohort.ParticipantsKey("ADNI"), []byte(parts.String()), "text/tab-separated-values")
	require.NoError(t, err)
	_, err = blob.PutBytes(ctx, data, cohort.FreesurferKey("ADNI"), []byte(fs.String()), "text/csv")
	require.NoError(t, err)
	_, err = blob.PutBytes(ctx, outputs, "ADNI_cleaned_ids.csv", []byte(ids.String()), "text/csv")
	require.NoError(t, err)
	return data, outputs
}

func TestService_Run(t *testing.T) {
	ctx := context.Background()
	data, outputs := seedDataset(t, adniSubjects())
	core, logs := observer.New(zapcore.InfoLevel)
	store := ledger.NewMemory()
	metrics := observability.NewRecorder(false)
	svc := &Service{
		Loader:  &cohort.Loader{Data: data, Outputs: outputs, Features: []string{"A"}},
		Ledger:  store,
		Metrics: metrics,
		Log:     zap.New(core),
	}
	req := Request{Dataset: "ADNI", InputKey: "ADNI_cleaned_ids.csv", OutputKey: "ADNI_homogeneous_ids.csv", Options: defaultOptions()}
	rep, err := svc.Run(ctx, req)
	require.NoError(t, err)

	ids, err := cohort.ReadIDs(ctx, outputs, "ADNI_homogeneous_ids.csv")
	require.NoError(t, err)
	require.Equal(t, rep.Retained.ImageIDs(), ids)
	require.Len(t, ids, 30)

	runs, err := store.Balances(ctx, "ADNI")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 64, runs[0].Input)
	require.Equal(t, 30, runs[0].Retained)
	require.Len(t, runs[0].Removed, 32)
	require.NotNil(t, runs[0].ChiSquareP)
	require.NotNil(t, runs[0].ANOVAP)
	require.InDelta(t, rep.ANOVA.PValue, *runs[0].ANOVAP, 1e-15)

	n, err := testutil.GatherAndCount(metrics.Registry(), "normative_balance_removed_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, 1, logs.FilterMessage("cohort balanced").Len())

	// A second run overwrites the output with the same IDs.
	_, err = svc.Run(ctx, req)
	require.NoError(t, err)
	again, err := cohort.ReadIDs(ctx, outputs, "ADNI_homogeneous_ids.csv")
	require.NoError(t, err)
	require.Equal(t, ids, again)
}

func TestService_RunErrors(t *testing.T) {
	ctx := context.Background()
	data, outputs := seedDataset(t, adniSubjects())
	svc := &Service{Loader: &cohort.Loader{Data: data, Outputs: outputs, Features: []string{"A"}}}

	_, err := svc.Run(ctx, Request{Dataset: "ADNI", InputKey: "missing.csv", OutputKey: "out.csv", Options: defaultOptions()})
	require.ErrorIs(t, err, blob.ErrNotFound)

	opts := defaultOptions()
	opts.Removals = []Removal{{Code: 27, Count: 31}}
	_, err = svc.Run(ctx, Request{Dataset: "ADNI", InputKey: "ADNI_cleaned_ids.csv", OutputKey: "out.csv", Options: opts})
	require.ErrorIs(t, err, ErrInsufficientMembers)
	_, err = outputs.Head(ctx, "out.csv")
	require.ErrorIs(t, err, blob.ErrNotFound, "no output on failure")
}
