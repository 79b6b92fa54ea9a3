package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/aretw0/strata/pkg/adapters/lifecycle"
	"github.com/aretw0/strata/pkg/core"
)

var watchPattern string

// repositoryDriver is implemented by drivers backed by a core.Repository.
type repositoryDriver interface {
	Repository() core.Repository
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream record changes of a driver",
	Long: `Print one JSON line per record created, modified or deleted behind the
driver, including edits made outside of strata. Only fs drivers can be watched.

  strata watch --driver disk --pattern 'posts/**'`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		inst, err := open(ctx)
		if err != nil {
			fatal("Error initializing strata", err)
		}
		name, driver, err := inst.Runtime.Drivers.Resolve(driverName)
		if err != nil {
			fatal("Error resolving driver", err)
		}
		rd, ok := driver.(repositoryDriver)
		if !ok {
			fatal("Error", fmt.Errorf("driver %s has no repository", name))
		}
		repo, ok := rd.Repository().(core.Watchable)
		if !ok {
			fatal("Error", fmt.Errorf("driver %s cannot be watched", name))
		}

		source := lifecycle.NewWatchSource(repo, watchPattern)
		if err := source.Start(ctx); err != nil {
			fatal("Error starting watch", err)
		}
		enc := json.NewEncoder(os.Stdout)
		for e := range source.Events() {
			if err := enc.Encode(e); err != nil {
				fatal("Error encoding JSON", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "**", "Glob over entity/id, e.g. posts/**")
}
