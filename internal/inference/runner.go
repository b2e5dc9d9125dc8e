// Package inference scores a cohort with every bootstrap replica of a trained
// normative model and writes the per-replica output tables.
package inference

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"normative/internal/blob"
	"normative/internal/cohort"
	"normative/internal/ledger"
	"normative/internal/model"
	"normative/internal/observability"
)

// ReplicaError reports the failure of one replica.
type ReplicaError struct {
	Replica int
	Err     error
}

func (e *ReplicaError) Error() string { return fmt.Sprintf("replica %03d: %v", e.Replica, e.Err) }

func (e *ReplicaError) Unwrap() error { return e.Err }

// Options select what a run scores.
type Options struct {
	Dataset string
	Model   string
	// Features names the columns of every subject's feature vector.
	Features []string
	// Replicas lists the replica indexes to run, in order.
	Replicas []int
	// Parallel bounds concurrent replicas; values below 1 mean 1.
	Parallel int
	// KeepGoing runs the remaining replicas after a failure.
	KeepGoing bool
	// SkipCompleted skips replicas the ledger records as succeeded.
	SkipCompleted bool
	// Seed is recorded with every replica run.
	Seed int64
}

// Result describes one successful replica.
type Result struct {
	Replica   int
	Subjects  int
	LatentDim int
	MeanError float64
	// Errors is the reconstruction error per subject in cohort order.
	Errors   []float64
	Duration time.Duration
}

// Summary is the outcome of Run.
type Summary struct {
	Completed []Result
	Skipped   []int
	Failed    []*ReplicaError
}

// Runner scores cohorts replica by replica. Ledger, Metrics, Log and
// OnReplica are optional.
type Runner struct {
	Models  model.Loader
	Outputs blob.Store
	Ledger  ledger.Store
	Metrics *observability.Recorder
	Log     *zap.Logger
	// OnReplica is called after every replica, serialized.
	OnReplica func(replica int, err error)
}

// Run scores c with every selected replica. Without KeepGoing the first
// failure cancels the remaining replicas and is returned. With KeepGoing
// all replicas run and the failures are returned joined.
func (r *Runner) Run(ctx context.Context, c *cohort.Cohort, opts Options) (*Summary, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	x, err := normalize(c, len(opts.Features))
	if err != nil {
		return nil, err
	}
	sum := &Summary{}
	todo := opts.Replicas
	if opts.SkipCompleted && r.Ledger != nil {
		done, err := ledger.Completed(ctx, r.Ledger, opts.Dataset, opts.Model)
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		todo = nil
		for _, i := range opts.Replicas {
			if done[i] {
				sum.Skipped = append(sum.Skipped, i)
				continue
			}
			todo = append(todo, i)
		}
		if len(sum.Skipped) > 0 {
			log.Info("skipping completed replicas", zap.Int("skipped", len(sum.Skipped)))
		}
	}

	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}
	var (
		g    *errgroup.Group
		gctx = ctx
		mu   sync.Mutex
	)
	if opts.KeepGoing {
		g = new(errgroup.Group)
	} else {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(parallel)
	log.Info("inference started",
		zap.String("dataset", opts.Dataset),
		zap.String("model", opts.Model),
		zap.Int("subjects", c.Len()),
		zap.Int("replicas", len(todo)),
		zap.Int("parallel", parallel))

	for _, replica := range todo {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.replica(gctx, c, x, opts, replica)
			if err != nil && gctx.Err() != nil && errors.Is(err, context.Canceled) {
				return err
			}
			if err == nil {
				mu.Lock()
				sum.Completed = append(sum.Completed, res)
				mu.Unlock()
			}
			r.finish(gctx, log, opts, replica, res, err, &mu)
			if err == nil {
				return nil
			}
			rerr := &ReplicaError{Replica: replica, Err: err}
			mu.Lock()
			sum.Failed = append(sum.Failed, rerr)
			mu.Unlock()
			if opts.KeepGoing {
				return nil
			}
			return rerr
		})
	}
	werr := g.Wait()
	sort.Slice(sum.Completed, func(i, j int) bool { return sum.Completed[i].Replica < sum.Completed[j].Replica })
	sort.Slice(sum.Failed, func(i, j int) bool { return sum.Failed[i].Replica < sum.Failed[j].Replica })
	if werr == nil {
		werr = ctx.Err()
	}
	if werr == nil && len(sum.Failed) > 0 {
		errs := make([]error, len(sum.Failed))
		for i, f := range sum.Failed {
			errs[i] = f
		}
		werr = errors.Join(errs...)
	}
	log.Info("inference finished",
		zap.Int("completed", len(sum.Completed)),
		zap.Int("failed", len(sum.Failed)),
		zap.Int("skipped", len(sum.Skipped)))
	return sum, werr
}

// finish records the replica outcome in the ledger, metrics and callback.
func (r *Runner) finish(ctx context.Context, log *zap.Logger, opts Options, replica int, res Result, err error, mu *sync.Mutex) {
	r.Metrics.Observe(ctx, "replica", err == nil, res.Duration)
	if err == nil {
		r.Metrics.Replica(replica, res.Subjects, res.MeanError)
		log.Info("replica done",
			zap.Int("replica", replica),
			zap.Float64("mean_error", res.MeanError),
			zap.Duration("took", res.Duration))
	} else {
		log.Error("replica failed", zap.Int("replica", replica), zap.Error(err))
	}
	if r.Ledger != nil {
		run := ledger.ReplicaRun{
			Dataset:    opts.Dataset,
			Model:      opts.Model,
			Replica:    replica,
			Status:     ledger.StatusSucceeded,
			Subjects:   res.Subjects,
			LatentDim:  res.LatentDim,
			MeanError:  res.MeanError,
			Seed:       opts.Seed,
			FinishedAt: time.Now().UTC(),
		}
		run.StartedAt = run.FinishedAt.Add(-res.Duration)
		if err != nil {
			run.Status = ledger.StatusFailed
			run.Error = err.Error()
		}
		// The failing replica cancels gctx; record it regardless.
		if _, lerr := r.Ledger.RecordReplica(context.WithoutCancel(ctx), run); lerr != nil {
			log.Warn("ledger write failed", zap.Int("replica", replica), zap.Error(lerr))
		}
	}
	if r.OnReplica != nil {
		mu.Lock()
		r.OnReplica(replica, err)
		mu.Unlock()
	}
}

func (r *Runner) replica(ctx context.Context, c *cohort.Cohort, x *mat.Dense, opts Options, replica int) (res Result, err error) {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	b, err := r.Models.Load(ctx, replica)
	if err != nil {
		return res, err
	}
	scaled, err := b.Scaler.Transform(x)
	if err != nil {
		return res, fmt.Errorf("scale: %w", err)
	}
	subjects := c.Subjects()
	ages := make([]float64, len(subjects))
	genders := make([]float64, len(subjects))
	for i, s := range subjects {
		ages[i] = float64(float32(s.Age))
		genders[i] = float64(float32(s.Gender))
	}
	ageHot, err := b.Age.Transform(ages)
	if err != nil {
		return res, fmt.Errorf("age encoder: %w", err)
	}
	genderHot, err := b.Gender.Transform(genders)
	if err != nil {
		return res, fmt.Errorf("gender encoder: %w", err)
	}
	var cond mat.Dense
	cond.Augment(ageHot, genderHot)

	latent, err := b.Encoder.Forward(scaled)
	if err != nil {
		return res, fmt.Errorf("encoder: %w", err)
	}
	var decIn mat.Dense
	decIn.Augment(latent, &cond)
	recon, err := b.Decoder.Forward(&decIn)
	if err != nil {
		return res, fmt.Errorf("decoder: %w", err)
	}
	n, f := scaled.Dims()
	if rr, rc := recon.Dims(); rr != n || rc != f {
		return res, fmt.Errorf("decoder: output is %dx%d, want %dx%d", rr, rc, n, f)
	}
	errs := make([]float64, n)
	diff := make([]float64, f)
	for i := range errs {
		floats.SubTo(diff, scaled.RawRowView(i), recon.RawRowView(i))
		errs[i] = float64(float32(floats.Dot(diff, diff) / float64(f)))
	}

	dir := OutputDir(opts.Model, replica, opts.Dataset)
	ids := c.IDs()
	_, k := latent.Dims()
	tables := []struct {
		name    string
		columns []string
		m       mat.Matrix
	}{
		{NormalizedTable, opts.Features, scaled},
		{ReconstructionTable, opts.Features, recon},
		{EncodedTable, indexColumns(k), latent},
		{ReconstructionErrorTable, []string{ErrorColumn}, mat.NewVecDense(n, errs)},
	}
	for _, t := range tables {
		if err := writeMatrix(ctx, r.Outputs, path.Join(dir, t.name), t.columns, ids, t.m); err != nil {
			return res, fmt.Errorf("write %s: %w", t.name, err)
		}
	}
	res = Result{Replica: replica, Subjects: n, LatentDim: k, MeanError: stat.Mean(errs, nil), Errors: errs}
	return res, nil
}

// normalize divides every feature by the subject's intracranial volume and
// rounds to float32 precision.
func normalize(c *cohort.Cohort, features int) (*mat.Dense, error) {
	if c.Len() == 0 {
		return nil, fmt.Errorf("cohort is empty")
	}
	if features == 0 {
		return nil, fmt.Errorf("no feature columns")
	}
	x := mat.NewDense(c.Len(), features, nil)
	for i, s := range c.Subjects() {
		if len(s.Features) != features {
			return nil, fmt.Errorf("subject %s: %d features, want %d", s.ParticipantID, len(s.Features), features)
		}
		if !(s.ICV > 0) {
			return nil, fmt.Errorf("subject %s: intracranial volume %v is not positive", s.ParticipantID, s.ICV)
		}
		for j, v := range s.Features {
			x.Set(i, j, float64(float32(v/s.ICV)))
		}
	}
	return x, nil
}
