// Package model evaluates a trained conditional autoencoder replica: the
// feature scaler, the age and gender one-hot encoders and the dense encoder
// and decoder networks.
package model

import (
	"context"
	"fmt"
	"path"

	"gonum.org/v1/gonum/mat"
)

// Transformer maps a feature matrix to a matrix of the same shape.
type Transformer interface {
	Transform(x *mat.Dense) (*mat.Dense, error)
}

// CategoricalEncoder one-hot encodes a column of values.
type CategoricalEncoder interface {
	Transform(values []float64) (*mat.Dense, error)
	// Width is the number of output columns.
	Width() int
}

// Network is a feed-forward model evaluated row-wise.
type Network interface {
	Forward(x *mat.Dense) (*mat.Dense, error)
}

// Loader resolves the bundle of one bootstrap replica.
type Loader interface {
	Load(ctx context.Context, replica int) (*Bundle, error)
}

// Bundle is everything needed to score a cohort with one replica.
type Bundle struct {
	Replica int
	Encoder Network
	Decoder Network
	Scaler  Transformer
	Age     CategoricalEncoder
	Gender  CategoricalEncoder
}

// Artifact file names inside a replica directory.
const (
	EncoderFile       = "encoder.json"
	DecoderFile       = "decoder.json"
	ScalerFile        = "scaler.json"
	AgeEncoderFile    = "age_encoder.json"
	GenderEncoderFile = "gender_encoder.json"
)

// BootstrapDir is the outputs store prefix holding model replicas.
const BootstrapDir = "bootstrap_analysis"

// ReplicaDir returns bootstrap_analysis/<model>/<NNN>.
func ReplicaDir(modelName string, replica int) string {
	return path.Join(BootstrapDir, modelName, fmt.Sprintf("%03d", replica))
}

// round32 rounds every element of m to float32 precision in place.
func round32(m *mat.Dense) *mat.Dense {
	m.Apply(func(_, _ int, v float64) float64 { return float64(float32(v)) }, m)
	return m
}
