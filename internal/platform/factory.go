package platform

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// Instance is a bootstrapped runtime with the store its composables share.
type Instance struct {
	Runtime *actions.Runtime
	Store   *store.Store
	// Root is the directory of the configuration file, if any. Relative fs
	// paths resolve against it.
	Root string
}

// New bootstraps a runtime: configuration context, schema, drivers built
// from the configuration file, then explicitly given drivers.
//
//	inst, err := platform.New(ctx, platform.WithConfigFile("strata.yaml"))
func New(ctx context.Context, opts ...Option) (*Instance, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	file := o.file
	root := ""
	if file == nil && o.configFile != "" {
		f, err := config.Load(o.configFile)
		if err != nil {
			return nil, err
		}
		file = f
	}
	if o.configFile != "" {
		abs, err := filepath.Abs(filepath.Dir(o.configFile))
		if err != nil {
			return nil, err
		}
		root = abs
	}

	schema := o.schema
	if schema == nil && file != nil {
		s, err := file.Schema()
		if err != nil {
			return nil, err
		}
		schema = s
	}
	if schema == nil {
		schema = core.NewSchema()
	}

	cfg := o.context
	if cfg == nil {
		cfg = config.New()
	}
	if o.logger != nil {
		cfg.SetLogger(o.logger)
	}
	if file != nil {
		if err := file.Apply(cfg); err != nil {
			return nil, err
		}
	}

	rt := actions.New(cfg, schema, o.logger)
	if file != nil {
		e := env{
			schema:    schema,
			logger:    o.logger,
			root:      root,
			devSafety: o.devSafety,
			readOnly:  o.readOnly,
		}
		names := make([]string, 0, len(file.Drivers))
		for name := range file.Drivers {
			if _, explicit := o.drivers[name]; !explicit {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			d, err := buildDriver(ctx, name, file.Drivers[name], e)
			if err != nil {
				return nil, err
			}
			rt.Drivers.Register(name, d)
		}
	}
	for name, d := range o.drivers {
		rt.Drivers.Register(name, d)
	}

	switch names := rt.Drivers.Names(); {
	case o.defaultDriver != "":
		cfg.SetDefaultDriver(o.defaultDriver)
	case cfg.DefaultDriver() == "" && len(names) == 1:
		cfg.SetDefaultDriver(names[0])
	}
	if def := cfg.DefaultDriver(); def != "" {
		if _, _, err := rt.Drivers.Resolve(def); err != nil {
			return nil, fmt.Errorf("default driver: %w", err)
		}
	}

	s := o.store
	if s == nil {
		s = store.New(schema)
	}
	if o.logger != nil {
		o.logger.Debug("runtime ready", "drivers", rt.Drivers.Names(), "default", cfg.DefaultDriver())
	}
	return &Instance{Runtime: rt, Store: s, Root: root}, nil
}
