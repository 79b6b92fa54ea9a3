package local

import (
	"sort"

	"github.com/aretw0/introspection"

	"github.com/aretw0/strata/pkg/core"
)

// State is the observable snapshot of a Driver.
type State struct {
	Name        string   `json:"name"`
	Features    []string `json:"features"`
	Latency     string   `json:"latency,omitempty"`
	PendingFail int      `json:"pending_failures,omitempty"`
	FailAlways  bool     `json:"fail_always,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// State implements introspection.Introspectable.
func (d *Driver) State() any {
	d.mu.Lock()
	pending, always := len(d.failNext), d.failAlways != nil
	d.mu.Unlock()

	st := State{
		Name:        d.config.Name,
		PendingFail: pending,
		FailAlways:  always,
	}
	for _, f := range d.warner.Seen() {
		st.Warnings = append(st.Warnings, string(f))
	}
	if d.config.Latency > 0 {
		st.Latency = d.config.Latency.String()
	}
	for f, on := range d.config.Features {
		if on {
			st.Features = append(st.Features, string(f))
		}
	}
	sort.Strings(st.Features)
	return st
}

// ComponentType implements introspection.Component.
func (d *Driver) ComponentType() string {
	return "driver"
}

var _ core.Driver = (*Driver)(nil)
var _ introspection.Introspectable = (*Driver)(nil)
var _ introspection.Component = (*Driver)(nil)
