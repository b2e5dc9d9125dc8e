package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrTooFewSamples is returned when a sample is too small for the test.
var ErrTooFewSamples = errors.New("stats: too few samples")

// TTestResult is the outcome of a two-sided two-sample t-test.
type TTestResult struct {
	Statistic float64
	PValue    float64
	DOF       float64
}

// TTestInd compares the means of two independent samples. With equalVar the
// pooled-variance Student test is used, otherwise Welch's test. Samples with
// zero variance give a NaN statistic and p-value.
func TTestInd(a, b []float64, equalVar bool) (TTestResult, error) {
	n1, n2 := float64(len(a)), float64(len(b))
	if len(a) < 2 || len(b) < 2 {
		return TTestResult{}, fmt.Errorf("%w: t-test needs two observations per sample, got %d and %d", ErrTooFewSamples, len(a), len(b))
	}
	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)
	var se, dof float64
	if equalVar {
		dof = n1 + n2 - 2
		pooled := ((n1-1)*v1 + (n2-1)*v2) / dof
		se = math.Sqrt(pooled * (1/n1 + 1/n2))
	} else {
		q1, q2 := v1/n1, v2/n2
		se = math.Sqrt(q1 + q2)
		dof = (q1 + q2) * (q1 + q2) / (q1*q1/(n1-1) + q2*q2/(n2-1))
	}
	if se == 0 {
		return TTestResult{Statistic: math.NaN(), PValue: math.NaN(), DOF: dof}, nil
	}
	t := (m1 - m2) / se
	p := 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}.Survival(math.Abs(t))
	return TTestResult{Statistic: t, PValue: math.Min(p, 1), DOF: dof}, nil
}

// ANOVAResult is the outcome of a one-way analysis of variance.
type ANOVAResult struct {
	F         float64
	PValue    float64
	DFBetween int
	DFWithin  int
}

// OneWayANOVA tests whether the group means are equal.
func OneWayANOVA(groups ...[]float64) (ANOVAResult, error) {
	if len(groups) < 2 {
		return ANOVAResult{}, fmt.Errorf("%w: anova needs at least two groups", ErrTooFewSamples)
	}
	var n int
	var sum float64
	for i, g := range groups {
		if len(g) == 0 {
			return ANOVAResult{}, fmt.Errorf("%w: anova group %d is empty", ErrTooFewSamples, i)
		}
		n += len(g)
		sum += floats.Sum(g)
	}
	k := len(groups)
	if n <= k {
		return ANOVAResult{}, fmt.Errorf("%w: anova needs more observations (%d) than groups (%d)", ErrTooFewSamples, n, k)
	}
	grand := sum / float64(n)
	var ssb, ssw float64
	for _, g := range groups {
		m := stat.Mean(g, nil)
		ssb += float64(len(g)) * (m - grand) * (m - grand)
		for _, x := range g {
			ssw += (x - m) * (x - m)
		}
	}
	res := ANOVAResult{DFBetween: k - 1, DFWithin: n - k}
	msb := ssb / float64(res.DFBetween)
	msw := ssw / float64(res.DFWithin)
	if msw == 0 {
		res.F, res.PValue = math.NaN(), math.NaN()
		return res, nil
	}
	res.F = msb / msw
	res.PValue = distuv.F{D1: float64(res.DFBetween), D2: float64(res.DFWithin)}.Survival(res.F)
	return res, nil
}
