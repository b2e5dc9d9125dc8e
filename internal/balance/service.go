package balance

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"normative/internal/cohort"
	"normative/internal/ledger"
	"normative/internal/observability"
)

// Request names the dataset and ID files of one balancing run.
type Request struct {
	Dataset string
	// InputKey is the ID filter read from the outputs store.
	InputKey string
	// OutputKey receives the retained Image_IDs.
	OutputKey string
	Options   Options
}

// Service loads a cohort, balances it and records the outcome. Ledger and
// Metrics are optional.
type Service struct {
	Loader  *cohort.Loader
	Ledger  ledger.Store
	Metrics *observability.Recorder
	Log     *zap.Logger
}

// Run executes req and writes the homogeneous ID file.
func (s *Service) Run(ctx context.Context, req Request) (rep *Report, err error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()
	defer func() { s.Metrics.Observe(ctx, "balance", err == nil, time.Since(start)) }()

	c, err := s.Loader.Load(ctx, req.Dataset, req.InputKey)
	if err != nil {
		return nil, fmt.Errorf("load cohort: %w", err)
	}

	rep, err = Run(c, req.Options)
	if err != nil {
		return nil, err
	}
	for _, st := range rep.Steps {
		log.Debug("subject removed",
			zap.String("participant_id", st.Subject.ParticipantID),
			zap.Int("group", st.Subject.Diagnosis),
			zap.Float64("age", st.Subject.Age))
	}
	if err := cohort.WriteIDs(ctx, s.Loader.Outputs, req.OutputKey, rep.Retained.ImageIDs()); err != nil {
		return nil, err
	}
	removed := make(map[int]int)
	for _, st := range rep.Steps {
		removed[st.Subject.Diagnosis]++
	}
	for _, g := range req.Options.Groups {
		s.Metrics.Removed(g.Name, removed[g.Code])
	}
	if s.Ledger != nil {
		if _, err := s.Ledger.RecordBalance(ctx, rep.ledgerRun(req, c.Len())); err != nil {
			return nil, fmt.Errorf("record balance: %w", err)
		}
	}
	log.Info("cohort balanced",
		zap.String("output", req.OutputKey),
		zap.Int("removed", len(rep.Steps)),
		zap.Int("retained", rep.Retained.Len()))
	return rep, nil
}

func (r *Report) ledgerRun(req Request, input int) ledger.BalanceRun {
	run := ledger.BalanceRun{
		Dataset:  req.Dataset,
		Input:    input,
		Retained: r.Retained.Len(),
		Output:   req.OutputKey,
	}
	for _, st := range r.Steps {
		run.Removed = append(run.Removed, ledger.RemovedSubject{
			ParticipantID: st.Subject.ParticipantID,
			ImageID:       st.Subject.ImageID,
			Group:         st.Subject.Diagnosis,
			Age:           st.Subject.Age,
		})
	}
	if r.ChiSquareErr == nil {
		run.ChiSquareP = finite(r.ChiSquare.PValue)
	}
	if r.ANOVAErr == nil {
		run.ANOVAP = finite(r.ANOVA.PValue)
	}
	return run
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
