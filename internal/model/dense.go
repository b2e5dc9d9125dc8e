package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation names.
const (
	Linear    = "linear"
	ReLU      = "relu"
	LeakyReLU = "leaky_relu"
	Tanh      = "tanh"
	Sigmoid   = "sigmoid"
	Softmax   = "softmax"
)

// Layer is a fully connected layer y = act(x·W + b). Weights are stored
// input-major: Weights[i][j] connects input i to output j.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
	// Alpha is the negative slope of leaky_relu; zero means 0.3.
	Alpha float64 `json:"alpha,omitempty"`
}

// Dense is a stack of fully connected layers. With no layers it is the
// identity.
type Dense struct {
	Layers []Layer `json:"layers"`

	weights []*mat.Dense
}

func (d *Dense) init() error {
	if d.weights != nil || len(d.Layers) == 0 {
		return nil
	}
	ws := make([]*mat.Dense, len(d.Layers))
	prevOut := -1
	for i, l := range d.Layers {
		in := len(l.Weights)
		if in == 0 || len(l.Weights[0]) == 0 {
			return fmt.Errorf("dense: layer %d has no weights", i)
		}
		out := len(l.Weights[0])
		if prevOut >= 0 && in != prevOut {
			return fmt.Errorf("dense: layer %d expects %d inputs, previous layer gives %d", i, in, prevOut)
		}
		if len(l.Bias) != out {
			return fmt.Errorf("dense: layer %d has %d outputs but %d biases", i, out, len(l.Bias))
		}
		switch l.Activation {
		case "", Linear, ReLU, LeakyReLU, Tanh, Sigmoid, Softmax:
		default:
			return fmt.Errorf("dense: layer %d: unknown activation %q", i, l.Activation)
		}
		data := make([]float64, 0, in*out)
		for r, row := range l.Weights {
			if len(row) != out {
				return fmt.Errorf("dense: layer %d weight row %d has %d columns, want %d", i, r, len(row), out)
			}
			data = append(data, row...)
		}
		ws[i] = mat.NewDense(in, out, data)
		prevOut = out
	}
	d.weights = ws
	return nil
}

// InputDim returns the expected input width, or 0 for the identity.
func (d *Dense) InputDim() int {
	if len(d.Layers) == 0 {
		return 0
	}
	return len(d.Layers[0].Weights)
}

// Forward evaluates the stack on every row of x at float32 precision.
func (d *Dense) Forward(x *mat.Dense) (*mat.Dense, error) {
	if err := d.init(); err != nil {
		return nil, err
	}
	cur := mat.DenseCopyOf(x)
	for i, w := range d.weights {
		_, c := cur.Dims()
		if in, _ := w.Dims(); in != c {
			return nil, fmt.Errorf("dense: layer %d expects %d inputs, got %d", i, in, c)
		}
		var next mat.Dense
		next.Mul(cur, w)
		l := d.Layers[i]
		next.Apply(func(_, j int, v float64) float64 { return v + l.Bias[j] }, &next)
		activate(&next, l)
		cur = round32(&next)
	}
	return cur, nil
}

func activate(m *mat.Dense, l Layer) {
	switch l.Activation {
	case ReLU:
		m.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, m)
	case LeakyReLU:
		alpha := l.Alpha
		if alpha == 0 {
			alpha = 0.3
		}
		m.Apply(func(_, _ int, v float64) float64 {
			if v < 0 {
				return alpha * v
			}
			return v
		}, m)
	case Tanh:
		m.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, m)
	case Sigmoid:
		m.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, m)
	case Softmax:
		r, _ := m.Dims()
		for i := 0; i < r; i++ {
			row := m.RawRowView(i)
			peak := math.Inf(-1)
			for _, v := range row {
				peak = math.Max(peak, v)
			}
			var sum float64
			for j, v := range row {
				row[j] = math.Exp(v - peak)
				sum += row[j]
			}
			for j := range row {
				row[j] /= sum
			}
		}
	}
}
