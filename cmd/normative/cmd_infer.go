package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normative/internal/cohort"
	"normative/internal/inference"
	"normative/internal/logging"
	"normative/internal/model"
)

type inferFlags struct {
	dataset       string
	replicas      string
	parallel      int
	keepGoing     bool
	skipCompleted bool
	progress      bool
}

func newInferCmd(a *app) *cobra.Command {
	var fl inferFlags
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Score a dataset with every bootstrap replica",
		Long: "infer loads <dataset>_homogeneous_ids.csv from the outputs store, joins it with the\n" +
			"dataset's participants and FreeSurfer tables, and writes normalized, reconstruction,\n" +
			"encoded and reconstruction_error tables for every replica.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInfer(cmd, fl)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&fl.dataset, "dataset-name", "D", "", "dataset to score (default from config)")
	f.StringVar(&fl.replicas, "replicas", "", "replica selector, e.g. 0-9,42 (default all)")
	f.IntVar(&fl.parallel, "parallel", 0, "replicas to run concurrently (default from config)")
	f.BoolVar(&fl.keepGoing, "keep-going", false, "continue after a failed replica")
	f.BoolVar(&fl.skipCompleted, "skip-completed", false, "skip replicas the ledger records as succeeded")
	f.BoolVar(&fl.progress, "progress", false, "show a progress bar on stderr")
	return cmd
}

func (a *app) runInfer(cmd *cobra.Command, fl inferFlags) error {
	ctx := cmd.Context()
	log := logging.New("infer")
	ic := a.cfg.Infer
	if cmd.Flags().Changed("parallel") {
		ic.Parallel = fl.parallel
	}
	if fl.keepGoing {
		ic.KeepGoing = true
	}
	if fl.skipCompleted {
		ic.SkipCompleted = true
	}
	replicas, err := inference.ParseReplicas(fl.replicas, ic.Replicas)
	if err != nil {
		return err
	}
	data, outputs, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	store, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger(store, log)

	features := ic.Features
	if len(features) == 0 {
		features = cohort.DefaultFeatures()
	}
	loader := &cohort.Loader{Data: data, Outputs: outputs, Features: features, Log: logging.New("cohort")}
	dataset := a.cfg.Dataset
	c, err := loader.Load(ctx, dataset, dataset+ic.IDsSuffix)
	if err != nil {
		return err
	}

	runner := &inference.Runner{
		Models:  &model.BlobLoader{Store: outputs, Model: ic.Model},
		Outputs: outputs,
		Ledger:  store,
		Metrics: a.metrics,
		Log:     log,
	}
	var bar *progressBar
	if fl.progress {
		bar = startProgress(a.stderr, len(replicas))
		runner.OnReplica = bar.done
	}
	start := time.Now()
	sum, err := runner.Run(ctx, c, inference.Options{
		Dataset:       dataset,
		Model:         ic.Model,
		Features:      features,
		Replicas:      replicas,
		Parallel:      ic.Parallel,
		KeepGoing:     ic.KeepGoing,
		SkipCompleted: ic.SkipCompleted,
		Seed:          ic.Seed,
	})
	bar.stop()
	a.metrics.Observe(ctx, "infer", err == nil, time.Since(start))
	if sum != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d replicas completed, %d failed, %d skipped\n",
			dataset, len(sum.Completed), len(sum.Failed), len(sum.Skipped))
		for _, f := range sum.Failed {
			log.Debug("failed replica", zap.Int("replica", f.Replica), zap.Error(f.Err))
		}
	}
	return err
}

type progressBar struct {
	pw      progress.Writer
	tracker *progress.Tracker
}

func startProgress(w io.Writer, total int) *progressBar {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetAutoStop(false)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.ShowETA(true)
	tracker := &progress.Tracker{Message: "replicas", Total: int64(total), Units: progress.UnitsDefault}
	pw.AppendTracker(tracker)
	go pw.Render()
	return &progressBar{pw: pw, tracker: tracker}
}

func (b *progressBar) done(_ int, err error) {
	if err != nil {
		b.tracker.IncrementWithError(1)
		return
	}
	b.tracker.Increment(1)
}

func (b *progressBar) stop() {
	if b == nil {
		return
	}
	b.tracker.MarkAsDone()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Render may not have started yet; give it a tick to pick up the tracker.
	for !b.pw.IsRenderInProgress() && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
	b.pw.Stop()
	for b.pw.IsRenderInProgress() && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
}
