package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/strata/pkg/core"
)

var findWith string

var findCmd = &cobra.Command{
	Use:   "find [entity] [id]",
	Short: "Read one record",
	Long:  `Read one record by its primary key. Composite keys are given as a JSON array, e.g. '[1,2]'.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		inst, m := model(ctx, args[0])

		opts := core.Options{Driver: driverName}
		decodeFlag("with", findWith, &opts.With)
		report(inst.Runtime.Find(ctx, m, args[1], opts))
	},
}

func init() {
	rootCmd.AddCommand(findCmd)
	findCmd.Flags().StringVar(&findWith, "with", "", "Relations to include as JSON")
}
