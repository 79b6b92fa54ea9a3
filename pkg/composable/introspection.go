package composable

import (
	"github.com/aretw0/introspection"
)

// State is the observable snapshot of a composable.
type State struct {
	Entity     string    `json:"entity"`
	Kind       string    `json:"kind"`
	Requests   []Request `json:"requests,omitempty"`
	Success    *bool     `json:"success,omitempty"`
	Optimistic bool      `json:"optimistic"`
	Persist    bool      `json:"persist"`
	Page       int       `json:"page,omitempty"`
	PagesCount int       `json:"pages_count,omitempty"`
}

func (b *base) state(kind string) State {
	st := State{
		Entity:     b.model.Entity,
		Kind:       kind,
		Requests:   b.requests.list(),
		Optimistic: b.opts.Optimistic,
		Persist:    b.persisting(),
	}
	if resp := b.Response(); resp != nil {
		ok := resp.Success
		st.Success = &ok
	}
	return st
}

// State implements introspection.Introspectable.
func (c *Creator) State() any { return c.state("creator") }

// State implements introspection.Introspectable.
func (f *Finder) State() any { return f.state("finder") }

// State implements introspection.Introspectable.
func (ix *Indexer) State() any {
	st := ix.state("indexer")
	st.Page = ix.Page()
	st.PagesCount = ix.PagesCount()
	return st
}

// State implements introspection.Introspectable.
func (u *Updater) State() any { return u.state("updater") }

// State implements introspection.Introspectable.
func (d *Destroyer) State() any { return d.state("destroyer") }

// ComponentType implements introspection.Component.
func (b *base) ComponentType() string {
	return "composable"
}

var (
	_ introspection.Introspectable = (*Creator)(nil)
	_ introspection.Introspectable = (*Finder)(nil)
	_ introspection.Introspectable = (*Indexer)(nil)
	_ introspection.Introspectable = (*Updater)(nil)
	_ introspection.Introspectable = (*Destroyer)(nil)
	_ introspection.Component      = (*Indexer)(nil)
)
