package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/fueltracker/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the panel, the last publish decision and model stability",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		p, err := pipeline.New(ctx, cfg, ledger)
		if err != nil {
			return err
		}

		latest := p.Panel().Latest()
		fmt.Printf("panel: %d periods", len(latest))
		if n := len(latest); n > 0 {
			fmt.Printf(" (%s .. %s)",
				latest[0].Period.Format("2006-01"), latest[n-1].Period.Format("2006-01"))
		}
		fmt.Println()
		if last := p.Panel().LastAsOf(); !last.IsZero() {
			fmt.Printf("last asof_ts: %s\n", last.Format(time.RFC3339))
		}

		published, err := ledger.LastPublished(ctx)
		if err != nil {
			return err
		}
		if published == nil {
			fmt.Println("no published vintage")
		} else {
			fmt.Printf("last published: %s (asof %s)\n",
				published.BatchID, published.AsOfTS.Format(time.RFC3339))
		}

		if batches := p.Panel().Batches(); len(batches) > 0 {
			b := batches[len(batches)-1]
			if d, err := ledger.GetDecision(ctx, b.BatchID); err != nil {
				return err
			} else if d != nil {
				fmt.Printf("latest decision: %s (%s)\n", d.Status, b.BatchID)
				for _, reason := range d.Reasons {
					fmt.Printf("  - %s\n", reason)
				}
			}
		}

		records, err := ledger.Stability(ctx)
		if err != nil {
			return err
		}
		if n := len(records); n > 0 {
			rec := records[n-1]
			fmt.Printf("stability: winner %s, %d flips in trailing window", rec.WinningModel, rec.FlipCount)
			if rec.Alert {
				fmt.Print("  ALERT")
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
