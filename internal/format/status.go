package format

import (
	"fmt"
	"io"
	"strconv"

	"normative/internal/ledger"
)

// ReplicaRuns lists replica runs, one row each.
func ReplicaRuns(w io.Writer, runs []ledger.ReplicaRun, m Mode) error {
	t := NewTable(m, "Replica runs")
	t.Header("Dataset", "Model", "Replica", "Status", "Subjects", "Latent", "Mean error", "Attempts", "Took", "Error")
	var failed int
	for _, r := range runs {
		if r.Status == ledger.StatusFailed {
			failed++
		}
		took := ""
		if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
			took = Duration(r.FinishedAt.Sub(r.StartedAt))
		}
		t.Row(r.Dataset, r.Model, fmt.Sprintf("%03d", r.Replica), string(r.Status), r.Subjects, r.LatentDim,
			strconv.FormatFloat(r.MeanError, 'g', 6, 64), r.Attempts, took, truncate(r.Error, 60))
	}
	t.Footer("", "", len(runs), fmt.Sprintf("%d failed", failed), "", "", "", "", "", "")
	t.AlignRight(3, 5, 6, 7, 8)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// BalanceRuns lists balancing runs in recording order.
func BalanceRuns(w io.Writer, runs []ledger.BalanceRun, m Mode) error {
	t := NewTable(m, "Balancing runs")
	t.Header("ID", "Dataset", "Created", "Input", "Removed", "Retained", "Chi-square p", "ANOVA p", "Output")
	for _, r := range runs {
		t.Row(r.ID, r.Dataset, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Input, len(r.Removed), r.Retained,
			optionalP(r.ChiSquareP), optionalP(r.ANOVAP), r.Output)
	}
	t.AlignRight(4, 5, 6, 7, 8)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func optionalP(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return PValue(*p, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
