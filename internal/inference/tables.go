package inference

import (
	"bytes"
	"context"
	"encoding/csv"
	"path"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"normative/internal/blob"
	"normative/internal/model"
)

// Output table names and columns.
const (
	NormalizedTable          = "normalized.csv"
	ReconstructionTable      = "reconstruction.csv"
	EncodedTable             = "encoded.csv"
	ReconstructionErrorTable = "reconstruction_error.csv"

	ParticipantIDColumn = "participant_id"
	ErrorColumn         = "Reconstruction error"
)

// OutputDir returns bootstrap_analysis/<model>/<NNN>/<dataset>.
func OutputDir(modelName string, replica int, dataset string) string {
	return path.Join(model.ReplicaDir(modelName, replica), dataset)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 32)
}

// writeMatrix stores m with one row per participant, replacing key.
func writeMatrix(ctx context.Context, store blob.Store, key string, columns, ids []string, m mat.Matrix) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append([]string{ParticipantIDColumn}, columns...)); err != nil {
		return err
	}
	_, c := m.Dims()
	rec := make([]string, c+1)
	for i, id := range ids {
		rec[0] = id
		for j := 0; j < c; j++ {
			rec[j+1] = formatValue(m.At(i, j))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	_, err := blob.PutBytes(ctx, store, key, buf.Bytes(), "text/csv")
	return err
}

func indexColumns(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}
