// Package stats implements the hypothesis tests used to balance cohorts:
// chi-square tests of independence, two-sample t-tests and one-way ANOVA.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrZeroExpected is returned when a contingency table has an expected
// frequency of zero, e.g. an all-zero row.
var ErrZeroExpected = errors.New("stats: zero expected frequency")

// Table is a contingency table of counts with sorted integer labels.
type Table struct {
	Rows   []int
	Cols   []int
	Counts [][]float64
}

// Crosstab counts co-occurrences of rows[i] and cols[i].
func Crosstab(rows, cols []int) (Table, error) {
	if len(rows) != len(cols) {
		return Table{}, fmt.Errorf("crosstab: length mismatch %d != %d", len(rows), len(cols))
	}
	t := Table{Rows: uniqueSorted(rows), Cols: uniqueSorted(cols)}
	ri, ci := indexOf(t.Rows), indexOf(t.Cols)
	t.Counts = make([][]float64, len(t.Rows))
	for i := range t.Counts {
		t.Counts[i] = make([]float64, len(t.Cols))
	}
	for i := range rows {
		t.Counts[ri[rows[i]]][ci[cols[i]]]++
	}
	return t, nil
}

// Select returns the sub-table restricted to the given column labels in the
// order requested. Labels absent from the table yield zero columns.
func (t Table) Select(cols ...int) Table {
	ci := indexOf(t.Cols)
	out := Table{Rows: append([]int(nil), t.Rows...), Cols: append([]int(nil), cols...), Counts: make([][]float64, len(t.Rows))}
	for r := range t.Rows {
		out.Counts[r] = make([]float64, len(cols))
		for j, c := range cols {
			if k, ok := ci[c]; ok {
				out.Counts[r][j] = t.Counts[r][k]
			}
		}
	}
	return out
}

// ChiSquareResult is the outcome of a chi-square test of independence.
type ChiSquareResult struct {
	Statistic float64
	PValue    float64
	DOF       int
	Expected  [][]float64
}

// ChiSquareContingency tests independence of the rows and columns of
// observed. Expected counts are row total times column total over the grand
// total. With correction set, Yates' continuity correction is applied when
// there is exactly one degree of freedom.
func ChiSquareContingency(observed [][]float64, correction bool) (ChiSquareResult, error) {
	if len(observed) == 0 || len(observed[0]) == 0 {
		return ChiSquareResult{}, errors.New("stats: empty contingency table")
	}
	nr, nc := len(observed), len(observed[0])
	rowSum := make([]float64, nr)
	colSum := make([]float64, nc)
	var total float64
	for i, row := range observed {
		if len(row) != nc {
			return ChiSquareResult{}, fmt.Errorf("stats: ragged contingency table row %d", i)
		}
		for j, v := range row {
			if v < 0 {
				return ChiSquareResult{}, fmt.Errorf("stats: negative count at (%d,%d)", i, j)
			}
			rowSum[i] += v
			colSum[j] += v
			total += v
		}
	}
	expected := make([][]float64, nr)
	for i := range expected {
		expected[i] = make([]float64, nc)
		for j := range expected[i] {
			if total > 0 {
				expected[i][j] = rowSum[i] * colSum[j] / total
			}
			if expected[i][j] == 0 {
				return ChiSquareResult{}, fmt.Errorf("%w at (%d,%d)", ErrZeroExpected, i, j)
			}
		}
	}
	dof := (nr - 1) * (nc - 1)
	if nr == 1 || nc == 1 {
		dof = 0
	}
	res := ChiSquareResult{DOF: dof, Expected: expected}
	if dof == 0 {
		res.PValue = 1
		return res, nil
	}
	for i := range observed {
		for j, o := range observed[i] {
			e := expected[i][j]
			if correction && dof == 1 {
				diff := e - o
				o += math.Copysign(math.Min(0.5, math.Abs(diff)), diff)
			}
			res.Statistic += (o - e) * (o - e) / e
		}
	}
	res.PValue = distuv.ChiSquared{K: float64(dof)}.Survival(res.Statistic)
	return res, nil
}

func uniqueSorted(v []int) []int {
	seen := make(map[int]bool, len(v))
	out := make([]int, 0, len(v))
	for _, x := range v {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	sort.Ints(out)
	return out
}

func indexOf(labels []int) map[int]int {
	m := make(map[int]int, len(labels))
	for i, l := range labels {
		m[l] = i
	}
	return m
}
