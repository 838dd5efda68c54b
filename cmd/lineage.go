package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Print the batch lineage and each batch's publish decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		batches, err := ledger.Batches(cmd.Context())
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			fmt.Println("lineage is empty")
			return nil
		}

		for _, b := range batches {
			status := "PENDING"
			if d, err := ledger.GetDecision(cmd.Context(), b.BatchID); err != nil {
				return err
			} else if d != nil {
				status = string(d.Status)
			}
			fmt.Printf("%s  %s  %-11s %-8s %d rows\n",
				b.BatchID, b.AsOfTS.Format(time.RFC3339), status, b.Source, b.RowCount)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lineageCmd)
}
