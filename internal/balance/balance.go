// Package balance trims diagnostic groups of a cohort until their ages and
// gender ratios are comparable, and reports the tests used to judge it.
package balance

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"normative/internal/cohort"
	"normative/internal/stats"
)

// ErrInsufficientMembers is returned when a removal asks for more subjects
// than the group holds.
var ErrInsufficientMembers = errors.New("balance: insufficient group members")

// Group is a diagnostic code with a display name.
type Group struct {
	Name string
	Code int
}

// Removal drops the Count youngest members of group Code.
type Removal struct {
	Code  int
	Count int
}

// Options parameterize a balancing run.
type Options struct {
	// Groups are compared pairwise and in the ANOVA, in this order.
	Groups   []Group
	Removals []Removal
	// Retain lists the diagnosis codes written to the homogeneous ID file.
	Retain []int
	// Welch selects Welch's t-test instead of the pooled-variance test.
	Welch bool
}

// Step is one removed subject.
type Step struct {
	Removal int
	Subject cohort.Subject
}

// PairTest is a test between two groups. Err is set when the test was
// undefined for the pair.
type PairTest struct {
	A, B      Group
	Statistic float64
	PValue    float64
	Err       error
}

// GroupSummary holds per-group descriptives.
type GroupSummary struct {
	Group   Group
	Count   int
	MeanAge float64
}

// Summary describes a cohort snapshot.
type Summary struct {
	Groups []GroupSummary
	// Gender is the pairwise chi-square test on gender, without continuity
	// correction.
	Gender []PairTest
	// Age is the pairwise two-sample t-test on age.
	Age []PairTest
}

// Report is the full outcome of Run.
type Report struct {
	Before Summary
	Steps  []Step
	After  Summary
	// ChiSquare tests gender against every diagnosis left after trimming,
	// configured or not, without continuity correction.
	ChiSquare    stats.ChiSquareResult
	ChiSquareErr error
	ANOVA        stats.ANOVAResult
	ANOVAErr     error
	// Balanced is the cohort after all removals.
	Balanced *cohort.Cohort
	// Retained is Balanced restricted to the retained codes.
	Retained *cohort.Cohort
}

// Trim removes the count youngest members of group code, one at a time.
// Ties go to the subject that appears first in cohort order. Each step is
// computed against the snapshot left by the previous one.
func Trim(c *cohort.Cohort, code, count int) (*cohort.Cohort, []cohort.Subject, error) {
	if count < 0 {
		return nil, nil, fmt.Errorf("balance: negative removal count %d", count)
	}
	if n := len(c.Group(code)); n < count {
		return nil, nil, fmt.Errorf("%w: group %d has %d members, %d requested", ErrInsufficientMembers, code, n, count)
	}
	removed := make([]cohort.Subject, 0, count)
	cur := c
	for i := 0; i < count; i++ {
		members := cur.Group(code)
		youngest := 0
		for j := 1; j < len(members); j++ {
			if members[j].Age < members[youngest].Age {
				youngest = j
			}
		}
		next, err := cur.Without(members[youngest].ParticipantID)
		if err != nil {
			return nil, nil, err
		}
		removed = append(removed, members[youngest])
		cur = next
	}
	return cur, removed, nil
}

// Run balances c according to opts. Test failures on individual pairs are
// reported in the result; only trimming errors abort the run.
func Run(c *cohort.Cohort, opts Options) (*Report, error) {
	if len(opts.Groups) < 2 {
		return nil, fmt.Errorf("balance: need at least two groups, got %d", len(opts.Groups))
	}
	rep := &Report{}
	var err error
	if rep.Before, err = summarize(c, opts, true); err != nil {
		return nil, err
	}
	cur := c
	for i, r := range opts.Removals {
		var removed []cohort.Subject
		cur, removed, err = Trim(cur, r.Code, r.Count)
		if err != nil {
			return nil, err
		}
		for _, s := range removed {
			rep.Steps = append(rep.Steps, Step{Removal: i, Subject: s})
		}
	}
	if rep.After, err = summarize(cur, opts, false); err != nil {
		return nil, err
	}
	ages := make([][]float64, len(opts.Groups))
	for i, g := range opts.Groups {
		ages[i] = cur.Ages(g.Code)
	}
	table, err := stats.Crosstab(cur.Genders(), cur.Diagnoses())
	if err != nil {
		return nil, err
	}
	rep.ChiSquare, rep.ChiSquareErr = stats.ChiSquareContingency(table.Counts, false)
	rep.ANOVA, rep.ANOVAErr = stats.OneWayANOVA(ages...)

	retain := make(map[int]bool, len(opts.Retain))
	for _, code := range opts.Retain {
		retain[code] = true
	}
	rep.Balanced = cur
	rep.Retained = cur.Filter(func(s cohort.Subject) bool { return retain[s.Diagnosis] })
	return rep, nil
}

func summarize(c *cohort.Cohort, opts Options, gender bool) (Summary, error) {
	var sum Summary
	counts := c.Counts()
	for _, g := range opts.Groups {
		ages := c.Ages(g.Code)
		mean := math.NaN()
		if len(ages) > 0 {
			mean = stat.Mean(ages, nil)
		}
		sum.Groups = append(sum.Groups, GroupSummary{Group: g, Count: counts[g.Code], MeanAge: mean})
	}
	var table stats.Table
	if gender {
		var err error
		if table, err = stats.Crosstab(c.Genders(), c.Diagnoses()); err != nil {
			return Summary{}, err
		}
	}
	for i := 0; i < len(opts.Groups); i++ {
		for j := i + 1; j < len(opts.Groups); j++ {
			a, b := opts.Groups[i], opts.Groups[j]
			if gender {
				pt := PairTest{A: a, B: b}
				res, err := stats.ChiSquareContingency(table.Select(a.Code, b.Code).Counts, false)
				pt.Statistic, pt.PValue, pt.Err = res.Statistic, res.PValue, err
				sum.Gender = append(sum.Gender, pt)
			}
			pt := PairTest{A: a, B: b}
			res, err := stats.TTestInd(c.Ages(a.Code), c.Ages(b.Code), !opts.Welch)
			pt.Statistic, pt.PValue, pt.Err = res.Statistic, res.PValue, err
			sum.Age = append(sum.Age, pt)
		}
	}
	return sum, nil
}
