package model

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"normative/internal/blob"
)

// BlobLoader reads replica bundles from JSON artifacts under
// bootstrap_analysis/<Model>/<NNN>/ in an outputs store.
type BlobLoader struct {
	Store blob.Store
	Model string
}

// Load reads and validates the five artifacts of replica.
func (l *BlobLoader) Load(ctx context.Context, replica int) (*Bundle, error) {
	if replica < 0 {
		return nil, fmt.Errorf("model: negative replica %d", replica)
	}
	dir := ReplicaDir(l.Model, replica)
	var (
		enc, dec    Dense
		scaler      Scaler
		age, gender OneHot
	)
	docs := []struct {
		name string
		into any
	}{
		{EncoderFile, &enc},
		{DecoderFile, &dec},
		{ScalerFile, &scaler},
		{AgeEncoderFile, &age},
		{GenderEncoderFile, &gender},
	}
	for _, d := range docs {
		if err := readJSON(ctx, l.Store, path.Join(dir, d.name), d.into); err != nil {
			return nil, err
		}
	}
	checks := []struct {
		name string
		err  error
	}{
		{EncoderFile, enc.init()},
		{DecoderFile, dec.init()},
		{ScalerFile, scaler.validate()},
		{AgeEncoderFile, age.init()},
		{GenderEncoderFile, gender.init()},
	}
	for _, c := range checks {
		if c.err != nil {
			return nil, fmt.Errorf("%s: %w", path.Join(dir, c.name), c.err)
		}
	}
	return &Bundle{Replica: replica, Encoder: &enc, Decoder: &dec, Scaler: &scaler, Age: &age, Gender: &gender}, nil
}

func readJSON(ctx context.Context, store blob.Store, key string, v any) error {
	b, err := blob.ReadAll(ctx, store, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Artifacts are the serializable parts of a bundle.
type Artifacts struct {
	Encoder Dense
	Decoder Dense
	Scaler  Scaler
	Age     OneHot
	Gender  OneHot
}

// Save writes a as replica of modelName, replacing existing artifacts.
func Save(ctx context.Context, store blob.Store, modelName string, replica int, a Artifacts) error {
	dir := ReplicaDir(modelName, replica)
	docs := map[string]any{
		EncoderFile:       a.Encoder,
		DecoderFile:       a.Decoder,
		ScalerFile:        a.Scaler,
		AgeEncoderFile:    a.Age,
		GenderEncoderFile: a.Gender,
	}
	for name, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if _, err := blob.PutBytes(ctx, store, path.Join(dir, name), b, "application/json"); err != nil {
			return err
		}
	}
	return nil
}
