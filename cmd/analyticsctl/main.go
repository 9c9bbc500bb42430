package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/backend"
)

var (
	storeDriver string

	rootCmd = &cobra.Command{
		Use:   "analyticsctl",
		Short: "Load hospital data and run analytics reports from the command line",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init("analyticsctl")
			logger.Log.SetOutput(os.Stderr)
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "record store driver (memory|mongo|postgres); defaults to STORE_DRIVER")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(schemesCmd)
}

func openStore(ctx context.Context) (backend.Store, *config.Config, error) {
	cfg := config.Load()
	if storeDriver != "" {
		cfg.StoreDriver = storeDriver
	}
	st, err := backend.Open(ctx, cfg)
	return st, cfg, err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
