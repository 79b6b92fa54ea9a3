package composable

import (
	"context"

	"github.com/google/uuid"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

const laneCreate = "create"

// Creator creates records from a bound form.
type Creator struct {
	base

	form   core.Form
	record core.Record
}

// NewCreator creates a Creator for m. s may be nil, which disables persistence.
func NewCreator(rt *actions.Runtime, m *core.Model, s *store.Store, opts ...Option) *Creator {
	return &Creator{base: newBase(rt, m, s, opts), form: core.Form{}}
}

// Form returns a copy of the bound form.
func (c *Creator) Form() core.Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Clone()
}

// Set assigns one field of the bound form.
func (c *Creator) Set(field string, value any) {
	c.mu.Lock()
	c.form[field] = value
	c.mu.Unlock()
	c.changed()
}

// SetForm replaces the bound form.
func (c *Creator) SetForm(form core.Form) {
	c.mu.Lock()
	c.form = form.Clone()
	if c.form == nil {
		c.form = core.Form{}
	}
	c.mu.Unlock()
	c.changed()
}

// Record returns the last created record.
func (c *Creator) Record() core.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Clone()
}

// Creating reports whether a create is in flight.
func (c *Creator) Creating() bool {
	return c.requests.inFlight(laneCreate)
}

// Cancel aborts the create in flight.
func (c *Creator) Cancel() bool {
	return c.requests.cancel(laneCreate, core.ErrAborted)
}

// Create stores a record built from the merge defaults, the bound form and
// form, in increasing precedence. A previous create still in flight is
// aborted. The bound form is reset only after a successful create.
func (c *Creator) Create(ctx context.Context, form core.Form) (*core.Response, error) {
	c.mu.Lock()
	bound := c.form.Clone()
	c.mu.Unlock()
	data := c.merged(bound, form)

	var speculative string
	if c.opts.Optimistic {
		key, err := c.speculate(data)
		if err != nil {
			return nil, err
		}
		speculative = key
	}
	key, _ := core.KeyOf(c.model, core.Record(data))

	req := c.requests.start(laneCreate, core.ActionCreate, key)
	opts, release := c.callOptions(req)
	resp, err := c.runtime.Create(ctx, c.model, data, opts)
	release()

	latest := c.requests.settle(req)
	settled := outcome(resp, err)
	if settled == nil {
		// Programmer error: nothing reached the driver.
		c.rollback(speculative)
		return resp, err
	}

	if !settled.Success {
		c.rollback(speculative)
		if latest {
			c.apply(settled)
		}
		return resp, err
	}

	if final, err := core.KeyOf(c.model, settled.Record); err != nil || final != speculative {
		c.rollback(speculative)
	}
	c.persist([]core.Record{settled.Record}, nil)
	if latest {
		c.mu.Lock()
		c.record = settled.Record.Clone()
		c.form = core.Form{}
		c.mu.Unlock()
		c.apply(settled)
	}
	return resp, err
}

// speculate writes the expected record before the driver settles and
// returns the key to roll back on failure, empty when nothing was written. A
// missing single key is generated and sent along, so the speculative and the
// final record share their identity.
func (c *Creator) speculate(data core.Form) (string, error) {
	if !c.model.Composite() {
		pk := c.model.PrimaryKey[0]
		if v, ok := data[pk]; !ok || v == nil || v == "" {
			gen := c.opts.KeyGen
			if gen == nil {
				gen = uuid.NewString
			}
			data[pk] = gen()
		}
	}
	rec := core.Record(data.Clone())
	key, err := core.KeyOf(c.model, rec)
	if err != nil {
		return "", err
	}

	// An existing record is never replaced, so there is nothing to undo.
	if _, exists := c.snapshot(key); exists {
		return "", nil
	}

	c.mu.Lock()
	c.record = rec.Clone()
	c.mu.Unlock()
	if c.persisting() {
		if _, err := c.store.Repo(c.model).Insert(rec); err != nil {
			return "", err
		}
	}
	c.changed()
	return key, nil
}

// rollback removes the speculative record of key.
func (c *Creator) rollback(key string) {
	if key == "" {
		return
	}
	if c.persisting() {
		c.store.Repo(c.model).Delete(key)
	}
	c.mu.Lock()
	if k, err := core.KeyOf(c.model, c.record); err == nil && k == key {
		c.record = nil
	}
	c.mu.Unlock()
	c.changed()
}
