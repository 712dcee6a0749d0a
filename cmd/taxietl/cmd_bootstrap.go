package main

import (
	"github.com/spf13/cobra"

	"github.com/nyctaxi/taxietl/internal/schema"
)

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Apply schema migrations idempotently without running a load",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := schema.Bootstrap(ctx, rt.db.SQLX.DB); err != nil {
				return err
			}
			rt.log.Info().Msg("schema bootstrap complete")
			return nil
		},
	}
}
