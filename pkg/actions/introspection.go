package actions

import (
	"github.com/aretw0/introspection"
)

// RuntimeState exposes the runtime wiring for observability.
type RuntimeState struct {
	Drivers       []string `json:"drivers"`
	DefaultDriver string   `json:"default_driver,omitempty"`
	Entities      []string `json:"entities"`
	GlobalScopes  []string `json:"global_scopes,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Runtime) State() any {
	st := RuntimeState{
		Drivers:       r.Drivers.Names(),
		DefaultDriver: r.config().DefaultDriver(),
		GlobalScopes:  r.config().ScopeNames(),
	}
	if r.Schema != nil {
		for _, m := range r.Schema.Models() {
			st.Entities = append(st.Entities, m.Entity)
		}
	}
	return st
}

// ComponentType implements introspection.Component.
func (r *Runtime) ComponentType() string {
	return "runtime"
}

var _ introspection.Introspectable = (*Runtime)(nil)
var _ introspection.Component = (*Runtime)(nil)
