package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"normative/internal/blob"
	"normative/internal/config"
	"normative/internal/format"
	"normative/internal/ledger"
	"normative/internal/logging"
	"normative/internal/observability"
)

// app carries the resolved configuration shared by all subcommands.
type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
	tableFormat string

	cfg     config.Config
	mode    format.Mode
	metrics *observability.Recorder
	stderr  io.Writer
	ready   bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "normative",
		Short: "Cohort balancing and bootstrap inference for normative brain models",
		Long: "normative trims clinical cohorts into demographically homogeneous groups\n" +
			"and scores them with every bootstrap replica of a trained adversarial autoencoder.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML configuration file")
	f.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&a.logFormat, "log-format", "", "log format (console, json)")
	f.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	f.StringVar(&a.tableFormat, "format", "ascii", "table format (ascii, markdown)")

	root.AddCommand(newInferCmd(a), newBalanceCmd(a), newStatusCmd(a))
	return root
}

// setup resolves configuration: defaults, then the YAML file, then
// NORMATIVE_* variables, then flags.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = a.metricsFile
	}
	if flags.Changed("dataset-name") {
		name, _ := flags.GetString("dataset-name")
		cfg.Dataset = name
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if a.mode, err = format.ParseMode(a.tableFormat); err != nil {
		return err
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, a.stderr); err != nil {
		return err
	}
	a.cfg = cfg
	a.metrics = observability.NewRecorder(true)
	a.ready = true
	return nil
}

// finish flushes logs and writes the metrics file.
func (a *app) finish() error {
	if !a.ready {
		return nil
	}
	logging.Sync()
	if a.cfg.MetricsFile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func (a *app) openStores(ctx context.Context) (data, outputs blob.Store, err error) {
	if data, err = blob.Open(ctx, a.cfg.Data.BlobOptions()); err != nil {
		return nil, nil, fmt.Errorf("open data store: %w", err)
	}
	if outputs, err = blob.Open(ctx, a.cfg.Outputs.BlobOptions()); err != nil {
		return nil, nil, fmt.Errorf("open outputs store: %w", err)
	}
	return data, outputs, nil
}

func (a *app) openLedger(ctx context.Context) (ledger.Store, error) {
	store, err := ledger.Open(ctx, ledger.Options{
		Driver:      a.cfg.Ledger.Driver,
		SQLitePath:  a.cfg.Ledger.SQLitePath,
		PostgresDSN: a.cfg.Ledger.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

func closeLedger(store ledger.Store, log *zap.Logger) {
	if err := store.Close(); err != nil {
		log.Warn("close ledger", zap.Error(err))
	}
}
