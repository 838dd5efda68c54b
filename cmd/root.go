package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/config"
	"github.com/sells-group/fueltracker/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fueltracker",
	Short: "Revision-aware fuel consumption forecasting pipeline",
	Long:  "Ingests monthly pipeline compressor fuel consumption vintages into an append-only lineage store, gates publication on tolerance and freshness, backtests candidate models rolling-origin and emits a horizon forecast with prediction intervals.",
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

// openLedger opens the configured ledger backend and runs migrations.
func openLedger(cmd *cobra.Command) (store.Ledger, error) {
	var ledger store.Ledger
	var err error
	switch cfg.Store.Driver {
	case "postgres":
		ledger, err = store.NewPostgres(cmd.Context(), cfg.Store.DatabaseURL)
	default:
		ledger, err = store.NewSQLite(cfg.Store.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := ledger.Migrate(cmd.Context()); err != nil {
		ledger.Close() //nolint:errcheck
		return nil, err
	}
	return ledger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
