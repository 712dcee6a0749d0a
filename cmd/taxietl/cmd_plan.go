package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyctaxi/taxietl/internal/orchestrator"
	"github.com/nyctaxi/taxietl/internal/planner"
	"github.com/nyctaxi/taxietl/internal/proclog"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the ordered, classified month list without running a load",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			logs := proclog.NewStore(rt.db.SQLX)
			snapshot, err := logs.Recent(ctx, 10000)
			if err != nil {
				return err
			}

			months, err := planner.Plan(ctx, rt.cfg.BackfillSpec, time.Now().UTC(),
				orchestrator.NewLogLookupAdapter(snapshot),
				&orchestrator.LocalFileLister{DataDir: rt.cfg.DataDir})
			if err != nil {
				return err
			}

			for _, m := range months {
				fmt.Printf("%04d-%02d\t%s\n", m.Month.Year, m.Month.Month, m.Classification)
			}
			return nil
		},
	}
}
