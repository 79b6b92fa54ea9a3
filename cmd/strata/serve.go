package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/pkg/adapters/rest"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the drivers over HTTP",
	Long: `Serve the REST API on top of the configured drivers. Routes are
/{entity} and /{entity}/{id}; the driver query parameter selects a driver.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		inst, err := open(ctx)
		if err != nil {
			fatal("Error initializing strata", err)
		}
		if driverName != "" {
			inst.Runtime.Config.SetDefaultDriver(driverName)
		}

		handler := rest.NewHandler(inst.Runtime, rest.WithLogger(slog.Default()))
		if err := rest.Serve(ctx, serveAddr, handler, slog.Default()); err != nil {
			fatal("Server failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
}
