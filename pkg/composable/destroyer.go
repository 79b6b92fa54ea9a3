package composable

import (
	"context"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// Destroyer removes records. Like Updater it tracks requests per record key.
type Destroyer struct {
	base

	destroyed map[string]core.Record
}

// NewDestroyer creates a Destroyer for m. s may be nil, which disables persistence.
func NewDestroyer(rt *actions.Runtime, m *core.Model, s *store.Store, opts ...Option) *Destroyer {
	return &Destroyer{base: newBase(rt, m, s, opts), destroyed: make(map[string]core.Record)}
}

func destroyLane(key string) string {
	return "destroy:" + key
}

// Destroying reports whether a destroy of id is in flight.
func (d *Destroyer) Destroying(id any) bool {
	key, err := core.NormalizeID(d.model, id)
	if err != nil {
		return false
	}
	return d.requests.inFlight(destroyLane(key))
}

// Cancel aborts the destroy of id in flight.
func (d *Destroyer) Cancel(id any) bool {
	key, err := core.NormalizeID(d.model, id)
	if err != nil {
		return false
	}
	return d.requests.cancel(destroyLane(key), core.ErrAborted)
}

// Destroyed returns the record removed by the last successful destroy of id.
func (d *Destroyer) Destroyed(id any) (core.Record, bool) {
	key, err := core.NormalizeID(d.model, id)
	if err != nil {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.destroyed[key]
	return rec.Clone(), ok
}

// Destroy removes the record identified by id. Optimistically, the stored
// record disappears at once and comes back if the action fails.
func (d *Destroyer) Destroy(ctx context.Context, id any) (*core.Response, error) {
	key, err := core.NormalizeID(d.model, id)
	if err != nil {
		return nil, err
	}

	var restore core.Record
	if d.opts.Optimistic && d.persisting() {
		if removed := d.store.Repo(d.model).Delete(key); len(removed) > 0 {
			restore = removed[0]
			d.changed()
		}
	}

	req := d.requests.start(destroyLane(key), core.ActionDestroy, key)
	opts, release := d.callOptions(req)
	resp, err := d.runtime.Destroy(ctx, d.model, key, opts)
	release()

	latest := d.requests.settle(req)
	settled := outcome(resp, err)
	if settled == nil || !settled.Success {
		if restore != nil {
			if _, err := d.store.Repo(d.model).Insert(restore); err != nil && d.opts.Logger != nil {
				d.opts.Logger.Warn("rollback failed", "entity", d.model.Entity, "id", key, "error", err)
			}
			d.changed()
		}
		if settled != nil && latest {
			d.apply(settled)
		}
		return resp, err
	}

	if d.persisting() {
		d.store.Repo(d.model).Delete(key)
	}
	if latest {
		d.mu.Lock()
		d.destroyed[key] = settled.Record.Clone()
		d.mu.Unlock()
		d.apply(settled)
	}
	return resp, err
}
