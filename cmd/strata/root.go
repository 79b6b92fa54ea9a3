package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/core"
)

var (
	verbose    bool
	configPath string
	driverName string
	readOnly   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Run CRUD actions against the drivers declared in strata.yaml",
	Long: `Strata routes create, find, index, update and destroy calls to the
drivers declared in a strata.yaml file (memory, fs or rest), and can expose
them over HTTP.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to strata.yaml (searched upwards from the working directory by default)")
	rootCmd.PersistentFlags().StringVarP(&driverName, "driver", "d", "", "Driver to route the call to (default driver when empty)")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "Open fs drivers read-only")
}

// open bootstraps the runtime from the configuration file.
func open(ctx context.Context) (*strata.Instance, error) {
	path := configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		found, err := strata.FindConfig(wd)
		if err != nil {
			return nil, fmt.Errorf("%w from %s", err, wd)
		}
		path = found
	}
	return strata.Open(ctx,
		strata.WithConfigFile(path),
		strata.WithLogger(slog.Default()),
		strata.WithReadOnly(readOnly),
		strata.WithDevSafety(false),
	)
}

// model opens the runtime and resolves entity.
func model(ctx context.Context, entity string) (*strata.Instance, *core.Model) {
	inst, err := open(ctx)
	if err != nil {
		fatal("Error initializing strata", err)
	}
	m, err := inst.Runtime.Model(entity)
	if err != nil {
		fatal("Error resolving entity", err)
	}
	return inst, m
}

// report prints resp as JSON and exits non-zero when the call failed.
func report(resp *core.Response, err error) {
	if err != nil {
		fatal("Error", err)
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fatal("Error encoding JSON", err)
	}
	fmt.Println(string(out))
	if !resp.Success {
		os.Exit(1)
	}
}

// decodeFlag decodes a JSON flag value into v. Empty values are skipped.
func decodeFlag(name, raw string, v any) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		fatal(fmt.Sprintf("Invalid --%s", name), err)
	}
}

// readForm decodes a JSON object from the --data flag, or stdin when it is "-".
func readForm(raw string) core.Form {
	data := []byte(raw)
	if raw == "-" {
		var err error
		data, err = io.ReadAll(io.LimitReader(os.Stdin, 16<<20))
		if err != nil {
			fatal("Error reading stdin", err)
		}
	}
	form := core.Form{}
	if len(data) == 0 {
		return form
	}
	if err := json.Unmarshal(data, &form); err != nil {
		fatal("Invalid --data", err)
	}
	return form
}
