package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/fueltracker/internal/backtest"
	"github.com/sells-group/fueltracker/internal/forecast"
	"github.com/sells-group/fueltracker/internal/pipeline"
	"github.com/sells-group/fueltracker/internal/selector"
)

var backtestCutoff string

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the rolling-origin backtest against the stored panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		p, err := pipeline.New(ctx, cfg, ledger)
		if err != nil {
			return err
		}

		cutoff := time.Now().UTC()
		if backtestCutoff != "" {
			if cutoff, err = time.Parse(time.RFC3339, backtestCutoff); err != nil {
				return fmt.Errorf("parse --cutoff: %w", err)
			}
		}

		view := p.Panel().Snapshot(cutoff)
		res, err := backtest.Run(ctx, view, forecast.Registry(), backtest.Config{
			LookbackMonths: cfg.Backtest.LookbackMonths,
			HorizonMonths:  cfg.Backtest.HorizonMonths,
			Workers:        cfg.Backtest.Workers,
		})
		if err != nil {
			return err
		}

		fmt.Printf("origins: %d\n", len(res.Origins))
		for _, agg := range res.Aggregates {
			status := ""
			if agg.Excluded {
				status = "  [excluded: majority of origins failed]"
			}
			fmt.Printf("%-16s mae=%.3f smape=%.2f rmse=%.3f mape=%.2f (%d origins, %d failures)%s\n",
				agg.ModelID, agg.Median.MAE, agg.Median.SMAPE, agg.Median.RMSE, agg.Median.MAPE,
				agg.Origins, agg.Failures, status)
		}

		sel, err := selector.Select("", res.Aggregates, selector.Config{
			Metric:         cfg.Backtest.SelectionMetric,
			ImprovementPct: cfg.Backtest.BaselineImprovementPct,
		})
		if err != nil {
			return err
		}
		fmt.Printf("winner: %s (%.1f%% vs baseline)\n", sel.WinningModel, sel.ComparisonVsBaseline)
		return nil
	},
}

func init() {
	backtestCmd.Flags().StringVar(&backtestCutoff, "cutoff", "", "as-of cutoff (RFC 3339), default now")
	rootCmd.AddCommand(backtestCmd)
}
