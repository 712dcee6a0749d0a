package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taxietl",
		Short:         "Resumable ETL for NYC TLC Yellow Taxi monthly trip data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newBootstrapCmd(),
		newPlanCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}
