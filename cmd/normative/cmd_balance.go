package main

import (
	"github.com/spf13/cobra"

	"normative/internal/balance"
	"normative/internal/cohort"
	"normative/internal/format"
	"normative/internal/logging"
)

func newBalanceCmd(a *app) *cobra.Command {
	var (
		dataset string
		welch   bool
	)
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Trim diagnostic groups into an age and gender homogeneous cohort",
		Long: "balance reads <dataset>_cleaned_ids.csv, reports pairwise gender chi-square and age\n" +
			"t-tests, removes the youngest members of the configured groups, re-tests, and writes\n" +
			"<dataset>_homogeneous_ids.csv.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bc := a.cfg.Balance
			if cmd.Flags().Changed("welch") {
				bc.Welch = welch
			}
			data, outputs, err := a.openStores(cmd.Context())
			if err != nil {
				return err
			}
			store, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			log := logging.New("balance")
			defer closeLedger(store, log)

			opts := balance.Options{Retain: bc.Retain, Welch: bc.Welch}
			for _, g := range bc.Groups {
				opts.Groups = append(opts.Groups, balance.Group{Name: g.Name, Code: g.Code})
			}
			for _, r := range bc.Removals {
				opts.Removals = append(opts.Removals, balance.Removal{Code: r.Code, Count: r.Count})
			}
			svc := &balance.Service{
				Loader:  &cohort.Loader{Data: data, Outputs: outputs, Features: a.cfg.Infer.Features, Log: logging.New("cohort")},
				Ledger:  store,
				Metrics: a.metrics,
				Log:     log,
			}
			ds := a.cfg.Dataset
			rep, err := svc.Run(cmd.Context(), balance.Request{
				Dataset:   ds,
				InputKey:  ds + bc.InputSuffix,
				OutputKey: ds + bc.OutputSuffix,
				Options:   opts,
			})
			if err != nil {
				return err
			}
			return format.BalanceReport(cmd.OutOrStdout(), rep, a.mode)
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset-name", "D", "", "dataset to balance (default from config)")
	cmd.Flags().BoolVar(&welch, "welch", false, "use Welch's t-test instead of the pooled-variance test")
	return cmd
}
