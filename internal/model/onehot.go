package model

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Unknown-category policies.
const (
	HandleUnknownError  = "error"
	HandleUnknownIgnore = "ignore"
)

// OneHot encodes a single categorical column. When BinEdges is set, values
// are first mapped to the index of the half-open bin [edges[i], edges[i+1])
// they fall in (the last bin includes its upper edge), and that index is
// matched against Categories. With bins and no Categories every bin is a
// category. Values are compared at float32 precision.
type OneHot struct {
	Categories    []float64 `json:"categories"`
	BinEdges      []float64 `json:"bin_edges,omitempty"`
	HandleUnknown string    `json:"handle_unknown,omitempty"`

	index map[float32]int
}

func (o *OneHot) init() error {
	if o.index != nil {
		return nil
	}
	switch o.HandleUnknown {
	case "", HandleUnknownError, HandleUnknownIgnore:
	default:
		return fmt.Errorf("onehot: unknown handle_unknown %q", o.HandleUnknown)
	}
	if len(o.BinEdges) == 1 {
		return fmt.Errorf("onehot: need at least two bin edges")
	}
	if !sort.Float64sAreSorted(o.BinEdges) {
		return fmt.Errorf("onehot: bin edges not sorted")
	}
	cats := o.Categories
	if len(cats) == 0 && len(o.BinEdges) > 1 {
		cats = make([]float64, len(o.BinEdges)-1)
		for i := range cats {
			cats[i] = float64(i)
		}
		o.Categories = cats
	}
	if len(cats) == 0 {
		return fmt.Errorf("onehot: no categories")
	}
	index := make(map[float32]int, len(cats))
	for i, c := range cats {
		k := float32(c)
		if _, dup := index[k]; dup {
			return fmt.Errorf("onehot: duplicate category %v", c)
		}
		index[k] = i
	}
	o.index = index
	return nil
}

// Width returns the number of categories.
func (o *OneHot) Width() int {
	if err := o.init(); err != nil {
		return 0
	}
	return len(o.Categories)
}

func (o *OneHot) bin(v float64) (float64, bool) {
	edges := o.BinEdges
	last := len(edges) - 1
	if v < edges[0] || v > edges[last] {
		return 0, false
	}
	if v == edges[last] {
		return float64(last - 1), true
	}
	above := sort.Search(len(edges), func(k int) bool { return edges[k] > v })
	return float64(above - 1), true
}

// Transform returns one row per value with a single 1 in the matching
// category column.
func (o *OneHot) Transform(values []float64) (*mat.Dense, error) {
	if err := o.init(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("onehot: no values")
	}
	out := mat.NewDense(len(values), len(o.Categories), nil)
	for i, v := range values {
		key := v
		ok := true
		if len(o.BinEdges) > 1 {
			key, ok = o.bin(v)
		}
		j, found := o.index[float32(key)]
		if !ok || !found {
			if o.HandleUnknown == HandleUnknownIgnore {
				continue
			}
			return nil, fmt.Errorf("onehot: unknown category %v at row %d", v, i)
		}
		out.Set(i, j, 1)
	}
	return out, nil
}
