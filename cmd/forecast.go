package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var forecastJSON bool

var forecastCmd = &cobra.Command{
	Use:   "forecast <batch-id>",
	Short: "Print the exported forecast for a published batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		rows, err := ledger.Forecast(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return eris.Errorf("no forecast exported for batch %s", args[0])
		}

		if forecastJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		fmt.Printf("model: %s\n", rows[0].ModelID)
		for _, r := range rows {
			fmt.Printf("%s  %10.3f  [%10.3f, %10.3f]\n",
				r.Period.Format("2006-01"), r.Point, r.PILower, r.PIUpper)
		}
		return nil
	},
}

func init() {
	forecastCmd.Flags().BoolVar(&forecastJSON, "json", false, "emit forecast rows as JSON")
	rootCmd.AddCommand(forecastCmd)
}
