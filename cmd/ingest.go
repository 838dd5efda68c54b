package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fueltracker/internal/contract"
	"github.com/sells-group/fueltracker/internal/pipeline"
)

// batchFile is the raw observation batch handed over by the ingestion
// adapter: an ordered record sequence plus a single asof_ts for the batch.
type batchFile struct {
	AsOfTS  time.Time            `yaml:"asof_ts"`
	Note    string               `yaml:"note"`
	Records []contract.RawRecord `yaml:"records"`
}

var ingestOverride bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <batch.yaml>",
	Short: "Ingest a raw observation batch and run the full pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read batch file %s", args[0])
		}
		var batch batchFile
		if err := yaml.Unmarshal(data, &batch); err != nil {
			return eris.Wrapf(err, "decode batch file %s", args[0])
		}
		if batch.AsOfTS.IsZero() {
			return eris.New("batch file is missing asof_ts")
		}

		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		p, err := pipeline.New(ctx, cfg, ledger)
		if err != nil {
			return err
		}

		res, err := p.Run(ctx, batch.Records, batch.AsOfTS, ingestOverride)
		if err != nil {
			return err
		}

		fmt.Printf("batch %s: %s\n", res.BatchID, res.Decision.Status)
		for _, reason := range res.Decision.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
		if res.Report.Rejects != nil {
			fmt.Printf("rejected %d of %d records\n",
				len(res.Report.Rejects), res.Report.Accepted+len(res.Report.Rejects))
		}
		if res.Selection != nil {
			fmt.Printf("winning model: %s (%.1f%% vs baseline)\n",
				res.Selection.WinningModel, res.Selection.ComparisonVsBaseline)
		}
		if res.Stability != nil && res.Stability.Alert {
			fmt.Printf("stability alert: %d flips in trailing window\n", res.Stability.FlipCount)
		}
		if len(res.Forecast) > 0 {
			fmt.Printf("forecast exported: %d rows from %s\n",
				len(res.Forecast), res.Forecast[0].Period.Format("2006-01"))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestOverride, "override", false,
		"publish despite staleness or tolerance breaches")
	rootCmd.AddCommand(ingestCmd)
}
