package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/strata/pkg/core"
)

var writeData string

var createCmd = &cobra.Command{
	Use:   "create [entity]",
	Short: "Create a record",
	Long:  `Create a record from a JSON object given with --data, or read from stdin with --data -.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		inst, m := model(ctx, args[0])
		report(inst.Runtime.Create(ctx, m, readForm(writeData), core.Options{Driver: driverName}))
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [entity] [id]",
	Short: "Update a record",
	Long:  `Merge the JSON object given with --data into a record. Primary key fields are kept.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		inst, m := model(ctx, args[0])
		report(inst.Runtime.Update(ctx, m, args[1], readForm(writeData), core.Options{Driver: driverName}))
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy [entity] [id]",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		inst, m := model(ctx, args[0])
		report(inst.Runtime.Destroy(ctx, m, args[1], core.Options{Driver: driverName}))
	},
}

func init() {
	rootCmd.AddCommand(createCmd, updateCmd, destroyCmd)
	for _, cmd := range []*cobra.Command{createCmd, updateCmd} {
		cmd.Flags().StringVar(&writeData, "data", "", "Record fields as a JSON object, - for stdin")
	}
}
