package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyctaxi/taxietl/internal/proclog"
)

func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print recent processing_log rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			logs := proclog.NewStore(rt.db.SQLX)
			rows, err := logs.Recent(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Printf("%-8s %-6s %-12s %-12s %-20s %s\n", "YEAR", "MONTH", "STATUS", "ATTEMPTS", "RECORDS_LOADED", "SOURCE_FILE")
			for _, r := range rows {
				fmt.Printf("%-8d %-6d %-12s %-12d %-20d %s\n", r.Year, r.Month, r.Status, r.AttemptCount, r.RecordsLoaded, r.SourceFile)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of rows to print, most recent first")
	return cmd
}
