package platform

import (
	"log/slog"

	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// options holds the bootstrap configuration of an Instance.
type options struct {
	logger        *slog.Logger
	configFile    string
	file          *config.File
	context       *config.Context
	schema        *core.Schema
	drivers       map[string]core.Driver
	defaultDriver string
	store         *store.Store
	devSafety     bool
	readOnly      bool
}

// Option defines a functional option for New.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		drivers:   make(map[string]core.Driver),
		devSafety: true,
	}
}

// WithLogger sets the logger handed to the runtime and to built drivers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConfigFile loads the YAML configuration at path.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// WithConfig uses an already parsed configuration. It wins over WithConfigFile.
func WithConfig(f *config.File) Option {
	return func(o *options) {
		o.file = f
	}
}

// WithConfigContext bootstraps into an existing configuration context
// instead of a fresh one.
func WithConfigContext(c *config.Context) Option {
	return func(o *options) {
		o.context = c
	}
}

// WithSchema sets the model registry. Entities declared in the
// configuration file are only used when no schema is given.
func WithSchema(s *core.Schema) Option {
	return func(o *options) {
		o.schema = s
	}
}

// WithDriver registers d under name. It replaces a driver of the same name
// declared in the configuration file.
func WithDriver(name string, d core.Driver) Option {
	return func(o *options) {
		o.drivers[name] = d
	}
}

// WithDefaultDriver sets the default driver key.
func WithDefaultDriver(name string) Option {
	return func(o *options) {
		o.defaultDriver = name
	}
}

// WithStore sets the store composables persist into.
func WithStore(s *store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithDevSafety controls the sandbox applied to fs driver paths under
// `go run` and `go test`. Enabled by default.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithReadOnly opens every fs driver read-only.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}
