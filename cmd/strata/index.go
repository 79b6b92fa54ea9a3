package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/strata/pkg/core"
)

var (
	indexFilters string
	indexWith    string
	indexOrderBy string
	indexPage    int
	indexPerPage int
	indexScopes  []string
)

var indexCmd = &cobra.Command{
	Use:   "index [entity]",
	Short: "List records",
	Long: `List the records of an entity. Filters, includes and ordering are JSON:

  strata index users --filters '{"age": {"between": [30, 55]}}' --order-by '[{"field": "age", "direction": "descending"}]'`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		inst, m := model(ctx, args[0])

		opts := core.Options{Driver: driverName}
		decodeFlag("filters", indexFilters, &opts.Filters)
		decodeFlag("with", indexWith, &opts.With)
		decodeFlag("order-by", indexOrderBy, &opts.OrderBy)
		for _, name := range indexScopes {
			opts.Scopes = append(opts.Scopes, core.Scoped(name))
		}
		if indexPerPage > 0 || indexPage > 0 {
			p := &core.Pagination{RecordsPerPage: indexPerPage}
			if indexPage > 0 {
				p.Page = &indexPage
			}
			opts.Pagination = p
		}

		report(inst.Runtime.Index(ctx, m, opts))
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexFilters, "filters", "", "Filters as JSON")
	indexCmd.Flags().StringVar(&indexWith, "with", "", "Relations to include as JSON")
	indexCmd.Flags().StringVar(&indexOrderBy, "order-by", "", "Sort keys as JSON")
	indexCmd.Flags().IntVar(&indexPage, "page", 0, "Page to fetch")
	indexCmd.Flags().IntVar(&indexPerPage, "per-page", 0, "Records per page (configuration default when zero)")
	indexCmd.Flags().StringSliceVar(&indexScopes, "scope", nil, "Named scopes to apply")
}
