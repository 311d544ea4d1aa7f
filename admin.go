package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jjm/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard persisted state and reseed the mock dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, kv, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer kv.Close()

		if err := st.Reset(cmd.Context()); err != nil {
			return err
		}
		logger.Info("Application state reset", zap.String("backend", cfg.StorageBackend))
		printCounts(cmd, "reset", st)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the mock dataset if the store is empty",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, kv, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer kv.Close()

		if err := st.Init(cmd.Context()); err != nil {
			return err
		}
		printCounts(cmd, "ready", st)
		return nil
	},
}

func printCounts(cmd *cobra.Command, verb string, st *store.MemoryStore) {
	d := st.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "store %s: %d assets, %d sensors, %d grievances, %d activities, %d alerts\n",
		verb, len(d.Assets), len(d.Sensors), len(d.Grievances), len(d.Activities), len(d.Alerts))
}
