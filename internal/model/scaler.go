package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Scaler standardizes columns as (x - center) / scale. A zero scale is
// treated as 1 so constant features pass through centred.
type Scaler struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

func (s *Scaler) validate() error {
	if len(s.Center) == 0 {
		return fmt.Errorf("scaler: no columns")
	}
	if len(s.Scale) != len(s.Center) {
		return fmt.Errorf("scaler: %d centers but %d scales", len(s.Center), len(s.Scale))
	}
	return nil
}

// Transform returns the scaled copy of x at float32 precision.
func (s *Scaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	_, c := x.Dims()
	if c != len(s.Center) {
		return nil, fmt.Errorf("scaler: fitted on %d features, got %d", len(s.Center), c)
	}
	out := mat.DenseCopyOf(x)
	out.Apply(func(_, j int, v float64) float64 {
		sc := s.Scale[j]
		if sc == 0 {
			sc = 1
		}
		return (v - s.Center[j]) / sc
	}, out)
	return round32(out), nil
}
