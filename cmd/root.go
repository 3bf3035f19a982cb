package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cierreops/cierre-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cierre-cli",
	Short: "Client for the payroll-close processing backend",
	Long:  "Uploads payroll spreadsheets, follows their server-side processing, and reconciles unmapped headers and unclassified ledger accounts.",
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
