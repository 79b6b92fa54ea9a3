package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aretw0/strata/pkg/adapters/fs"
	"github.com/aretw0/strata/pkg/adapters/local"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/rest"
	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// Driver types accepted in the drivers section of the configuration.
const (
	DriverMemory = "memory"
	DriverFS     = "fs"
	DriverREST   = "rest"
)

// env is what driver construction needs besides the declaration.
type env struct {
	schema    *core.Schema
	logger    *slog.Logger
	root      string
	devSafety bool
	readOnly  bool
}

// buildDriver constructs the driver declared as name.
func buildDriver(ctx context.Context, name string, d config.DriverFile, e env) (core.Driver, error) {
	opts := driverOptions(d.Options)
	switch d.Type {
	case DriverMemory, "":
		latency, err := opts.duration("latency")
		if err != nil {
			return nil, err
		}
		return memory.NewDriver(store.New(e.schema), local.Config{
			Name:    name,
			Logger:  e.logger,
			Schema:  e.schema,
			Latency: latency,
		}), nil

	case DriverFS:
		return buildFS(ctx, name, opts, e)

	case DriverREST:
		timeout, err := opts.duration("timeout")
		if err != nil {
			return nil, err
		}
		headers := http.Header{}
		if raw, ok := opts["headers"].(map[string]any); ok {
			for k, v := range raw {
				headers.Set(k, fmt.Sprint(v))
			}
		}
		return rest.NewDriver(rest.Config{
			BaseURL: opts.string("baseURL"),
			Name:    name,
			Headers: headers,
			Logger:  e.logger,
			Timeout: timeout,
		})
	}
	return nil, fmt.Errorf("driver %s: unknown type %q", name, d.Type)
}

func buildFS(ctx context.Context, name string, opts driverOptions, e env) (core.Driver, error) {
	path := opts.string("path")
	if path == "" {
		path = "data"
	}
	if !filepath.IsAbs(path) && e.root != "" {
		path = filepath.Join(e.root, path)
	}

	readOnly := e.readOnly || opts.bool("readOnly")
	useTemp := IsDevRun() && e.devSafety && !readOnly
	resolved := ResolveDataPath(path, useTemp)
	if e.logger != nil && useTemp {
		e.logger.Warn("running in SAFE MODE (Dev/Test)", "driver", name, "original_path", path, "resolved_path", resolved)
	}

	repo, err := fs.NewRepository(fs.Config{
		Path:      resolved,
		SystemDir: opts.string("systemDir"),
		Format:    opts.string("format"),
		Strict:    opts.bool("strict"),
		MustExist: opts.bool("mustExist"),
		ReadOnly:  readOnly,
		Versioned: opts.bool("versioned"),
		Logger:    e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("driver %s: %w", name, err)
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("driver %s: %w", name, err)
	}
	return local.New(repo, local.Config{Name: name, Logger: e.logger, Schema: e.schema}), nil
}

// driverOptions are the type-specific keys of a driver declaration.
type driverOptions map[string]any

func (o driverOptions) string(key string) string {
	s, _ := o[key].(string)
	return s
}

func (o driverOptions) bool(key string) bool {
	b, _ := o[key].(bool)
	return b
}

func (o driverOptions) duration(key string) (time.Duration, error) {
	s := o.string(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
