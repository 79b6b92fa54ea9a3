package rest

import (
	"github.com/aretw0/introspection"
)

// DriverState exposes the remote driver configuration.
type DriverState struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout"`
}

// State implements introspection.Introspectable.
func (d *Driver) State() any {
	return DriverState{
		Name:    d.config.Name,
		BaseURL: d.base.String(),
		Timeout: d.client.Timeout.String(),
	}
}

// ComponentType implements introspection.Component.
func (d *Driver) ComponentType() string {
	return "driver"
}

var _ introspection.Introspectable = (*Driver)(nil)
var _ introspection.Component = (*Driver)(nil)
