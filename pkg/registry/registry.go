// Package registry keeps the drivers registered at application setup and
// resolves the one a call should be routed to.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
)

// Registry maps driver keys to drivers.
type Registry struct {
	cfg *config.Context

	mu      sync.RWMutex
	drivers map[string]core.Driver
}

// New creates an empty registry reading its default key from cfg.
func New(cfg *config.Context) *Registry {
	return &Registry{cfg: cfg, drivers: make(map[string]core.Driver)}
}

// Register adds or replaces the driver under name.
func (r *Registry) Register(name string, d core.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = d
}

// Names returns the registered keys, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the driver registered under name, or under the configured
// default key when name is empty. A missing driver is a programmer error.
func (r *Registry) Resolve(name string) (string, core.Driver, error) {
	if name == "" && r.cfg != nil {
		name = r.cfg.DefaultDriver()
	}
	if name == "" {
		return "", nil, fmt.Errorf("%w: no driver requested and no default driver configured", core.ErrUnknownDriver)
	}

	r.mu.RLock()
	d, ok := r.drivers[name]
	r.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %q is not registered", core.ErrUnknownDriver, name)
	}
	return name, d, nil
}
