package strata

import (
	"context"
	"log/slog"

	"github.com/aretw0/strata/internal/platform"
	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
	"github.com/aretw0/strata/pkg/typed"
)

// --- Types ---

// Runtime runs the CRUD actions.
type Runtime = actions.Runtime

// Instance is a runtime plus the store its composables share.
type Instance = platform.Instance

// Document is a typed view of one record.
type Document[T any] = typed.Document[T]

// TypedRepository gives type-safe access to one entity.
type TypedRepository[T any] = typed.Repository[T]

// --- Configuration ---

// Option defines a functional option for New and Open.
type Option = platform.Option

// WithLogger sets the logger of the runtime and of built drivers.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithConfigFile loads the YAML configuration at path.
func WithConfigFile(path string) Option {
	return platform.WithConfigFile(path)
}

// WithConfig uses an already parsed configuration.
func WithConfig(f *config.File) Option {
	return platform.WithConfig(f)
}

// WithConfigContext bootstraps into an existing configuration context.
func WithConfigContext(c *config.Context) Option {
	return platform.WithConfigContext(c)
}

// WithSchema sets the model registry.
func WithSchema(s *core.Schema) Option {
	return platform.WithSchema(s)
}

// WithDriver registers a driver under name.
func WithDriver(name string, d core.Driver) Option {
	return platform.WithDriver(name, d)
}

// WithDefaultDriver sets the default driver key.
func WithDefaultDriver(name string) Option {
	return platform.WithDefaultDriver(name)
}

// WithStore sets the store composables persist into.
func WithStore(s *store.Store) Option {
	return platform.WithStore(s)
}

// WithDevSafety controls the sandbox of fs driver paths under go run and go test.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithReadOnly opens every fs driver read-only.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// --- Factory ---

// New bootstraps a runtime.
func New(opts ...Option) (*Runtime, error) {
	inst, err := platform.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return inst.Runtime, nil
}

// Open bootstraps a runtime and its shared store.
func Open(ctx context.Context, opts ...Option) (*Instance, error) {
	return platform.New(ctx, opts...)
}

// NewTypedRepository creates a type-safe repository of entity.
func NewTypedRepository[T any](rt *Runtime, entity string, defaults core.Options) (*TypedRepository[T], error) {
	return typed.NewRepository[T](rt, entity, defaults)
}

// --- Safety & Utils ---

// FindRoot walks up from startDir to the directory holding strata.yaml or a
// .strata directory.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}

// FindConfig walks up from startDir to the nearest strata.yaml.
func FindConfig(startDir string) (string, error) {
	return platform.FindConfig(startDir)
}

// IsDevRun reports whether the process runs via go run or go test.
func IsDevRun() bool {
	return platform.IsDevRun()
}
