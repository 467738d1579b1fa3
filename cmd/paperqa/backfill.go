package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"paper-citations-rag/internal/app"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-extract page texts for documents indexed without them",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := app.New(cmd.Context(), cfg, "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Service.BackfillPageTexts(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Restored %d, already present %d, failed %d\n", report.Processed, report.Skipped, report.Failed)
		if report.Failed > 0 {
			return eris.Errorf("%d documents could not be backfilled", report.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}
