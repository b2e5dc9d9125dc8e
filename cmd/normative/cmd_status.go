package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"normative/internal/format"
	"normative/internal/logging"
)

func newStatusCmd(a *app) *cobra.Command {
	var dataset string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List recorded inference and balancing runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeLedger(store, logging.New("status"))
			filter := ""
			if cmd.Flags().Changed("dataset-name") {
				filter = a.cfg.Dataset
			}
			replicas, err := store.Replicas(ctx, filter)
			if err != nil {
				return err
			}
			balances, err := store.Balances(ctx, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(replicas) == 0 && len(balances) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			if len(balances) > 0 {
				if err := format.BalanceRuns(out, balances, a.mode); err != nil {
					return err
				}
			}
			if len(replicas) > 0 {
				return format.ReplicaRuns(out, replicas, a.mode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset-name", "D", "", "only list runs of this dataset")
	return cmd
}
