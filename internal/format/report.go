package format

import (
	"fmt"
	"io"

	"normative/internal/balance"
)

// BalanceReport writes the diagnostics of a balancing run: counts, pairwise
// gender and age tests and mean ages before trimming, the removed subjects,
// then the post-trim tests.
func BalanceReport(w io.Writer, rep *balance.Report, m Mode) error {
	sections := []*Table{
		groupTable(m, "Before balancing", rep.Before.Groups),
		pairTable(m, "Gender chi-square (no correction)", "p", rep.Before.Gender),
		pairTable(m, "Age t-test", "p", rep.Before.Age),
		stepTable(m, rep.Steps),
		groupTable(m, "After balancing", rep.After.Groups),
		pairTable(m, "Age t-test after trimming", "p", rep.After.Age),
		omnibusTable(m, rep),
	}
	for _, t := range sections {
		if t == nil {
			continue
		}
		if _, err := fmt.Fprintln(w, t.String()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d subjects removed, %d retained\n", len(rep.Steps), rep.Retained.Len())
	return err
}

func groupTable(m Mode, title string, groups []balance.GroupSummary) *Table {
	t := NewTable(m, title)
	t.Header("Group", "Code", "Count", "Mean age")
	var total int
	for _, g := range groups {
		t.Row(g.Group.Name, g.Group.Code, g.Count, Float(g.MeanAge))
		total += g.Count
	}
	t.Footer("Total", "", total, "")
	t.AlignRight(2, 3, 4)
	return t
}

func pairTable(m Mode, title, col string, pairs []balance.PairTest) *Table {
	if len(pairs) == 0 {
		return nil
	}
	t := NewTable(m, title)
	t.Header("A", "B", "Statistic", col)
	for _, p := range pairs {
		stat := "n/a"
		if p.Err == nil {
			stat = Float(p.Statistic)
		}
		t.Row(p.A.Name, p.B.Name, stat, PValue(p.PValue, p.Err))
	}
	t.AlignRight(3, 4)
	return t
}

func stepTable(m Mode, steps []balance.Step) *Table {
	if len(steps) == 0 {
		return nil
	}
	t := NewTable(m, "Removed subjects")
	t.Header("#", "Participant", "Image", "Group", "Age")
	for i, s := range steps {
		t.Row(i+1, s.Subject.ParticipantID, s.Subject.ImageID, s.Subject.Diagnosis, Float(s.Subject.Age))
	}
	t.AlignRight(1, 4, 5)
	return t
}

func omnibusTable(m Mode, rep *balance.Report) *Table {
	t := NewTable(m, "Omnibus tests")
	t.Header("Test", "Statistic", "DOF", "p")
	chi, anova := "n/a", "n/a"
	if rep.ChiSquareErr == nil {
		chi = Float(rep.ChiSquare.Statistic)
	}
	if rep.ANOVAErr == nil {
		anova = Float(rep.ANOVA.F)
	}
	t.Row("Gender x diagnosis chi-square", chi, rep.ChiSquare.DOF, PValue(rep.ChiSquare.PValue, rep.ChiSquareErr))
	t.Row("Age one-way ANOVA", anova, fmt.Sprintf("%d, %d", rep.ANOVA.DFBetween, rep.ANOVA.DFWithin), PValue(rep.ANOVA.PValue, rep.ANOVAErr))
	t.AlignRight(2, 3, 4)
	return t
}
