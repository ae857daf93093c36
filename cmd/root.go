package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/g5/dss-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dss-engine",
	Short: "Retail decision analytics engine",
	Long:  "Loads retail transaction exports, segments customers by RFM, mines market-basket association rules, and optimizes COD gatekeeping thresholds.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
