package composable

import (
	"context"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

const laneFind = "find"

// Finder fetches single records. Only the latest Find is reflected in its state.
type Finder struct {
	base

	record core.Record
}

// NewFinder creates a Finder for m. s may be nil, which disables persistence.
func NewFinder(rt *actions.Runtime, m *core.Model, s *store.Store, opts ...Option) *Finder {
	return &Finder{base: newBase(rt, m, s, opts)}
}

// Record returns the last found record, relations included.
func (f *Finder) Record() core.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record.Clone()
}

// Finding reports whether a find is in flight.
func (f *Finder) Finding() bool {
	return f.requests.inFlight(laneFind)
}

// Cancel aborts the find in flight.
func (f *Finder) Cancel() bool {
	return f.requests.cancel(laneFind, core.ErrAborted)
}

// Find fetches the record identified by id, aborting a previous find still
// in flight. A superseded find returns its own response but leaves the state
// untouched.
func (f *Finder) Find(ctx context.Context, id any) (*core.Response, error) {
	key, err := core.NormalizeID(f.model, id)
	if err != nil {
		return nil, err
	}

	req := f.requests.start(laneFind, core.ActionFind, key)
	opts, release := f.callOptions(req)
	resp, err := f.runtime.Find(ctx, f.model, key, opts)
	release()

	latest := f.requests.settle(req)
	settled := outcome(resp, err)
	if settled == nil || !latest {
		return resp, err
	}

	if settled.Success {
		f.persist([]core.Record{settled.Record}, nil)
		f.mu.Lock()
		f.record = settled.Record.Clone()
		f.mu.Unlock()
	}
	f.apply(settled)
	return resp, err
}
