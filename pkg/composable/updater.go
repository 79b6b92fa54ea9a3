package composable

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// Updater edits records through per-record forms. Requests are tracked per
// record key: a new update of a key aborts the previous one of that key,
// updates of different keys run independently.
type Updater struct {
	base

	forms   map[string]core.Form
	records map[string]core.Record
	// speculations holds, per key, the state preceding the first optimistic
	// write still in flight.
	speculations map[string]*speculation

	timerMu sync.Mutex
	timers  map[string]*time.Timer
	pending sync.WaitGroup
}

// NewUpdater creates an Updater for m. s may be nil, which disables persistence.
func NewUpdater(rt *actions.Runtime, m *core.Model, s *store.Store, opts ...Option) *Updater {
	return &Updater{
		base:    newBase(rt, m, s, opts),
		forms:   make(map[string]core.Form),
		records: make(map[string]core.Record),
		timers:  make(map[string]*time.Timer),

		speculations: make(map[string]*speculation),
	}
}

func updateLane(key string) string {
	return "update:" + key
}

// MakeForm binds a form to the record identified by id, seeded from the
// stored record when there is one.
func (u *Updater) MakeForm(id any) (core.Form, error) {
	key, err := core.NormalizeID(u.model, id)
	if err != nil {
		return nil, err
	}
	form := core.Form{}
	if rec, ok := u.snapshot(key); ok {
		form = core.Form(rec.Clone())
	}
	u.mu.Lock()
	u.forms[key] = form
	u.mu.Unlock()
	u.changed()
	return form.Clone(), nil
}

// Form returns a copy of the form bound to id.
func (u *Updater) Form(id any) (core.Form, bool) {
	key, err := core.NormalizeID(u.model, id)
	if err != nil {
		return nil, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	f, ok := u.forms[key]
	return f.Clone(), ok
}

// Set assigns one field of the form bound to id. With auto-update enabled
// an update of id is scheduled after the debounce window; edits within the
// window coalesce into one trailing update run with ctx.
func (u *Updater) Set(ctx context.Context, id any, field string, value any) error {
	key, err := core.NormalizeID(u.model, id)
	if err != nil {
		return err
	}
	u.mu.Lock()
	form, ok := u.forms[key]
	if !ok {
		form = core.Form{}
		u.forms[key] = form
	}
	form[field] = value
	u.mu.Unlock()
	u.changed()

	if u.opts.AutoUpdate {
		return u.schedule(ctx, key)
	}
	return nil
}

// schedule (re)arms the debounce timer of key.
func (u *Updater) schedule(ctx context.Context, key string) error {
	driver, err := u.driverName()
	if err != nil {
		return err
	}
	window := u.runtime.Config.AutoUpdateDebounce(driver, u.opts.AutoUpdateDebounce)

	u.timerMu.Lock()
	defer u.timerMu.Unlock()
	if t, ok := u.timers[key]; ok && t.Stop() {
		u.pending.Done()
	}
	u.pending.Add(1)
	u.timers[key] = time.AfterFunc(window, func() {
		defer u.pending.Done()
		u.timerMu.Lock()
		delete(u.timers, key)
		u.timerMu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := u.Update(ctx, key, nil); err != nil && u.opts.Logger != nil {
			u.opts.Logger.Warn("auto update failed", "entity", u.model.Entity, "id", key, "error", err)
		}
	})
	return nil
}

// Flush waits for scheduled auto-updates to run.
func (u *Updater) Flush() {
	u.pending.Wait()
}

// Close stops scheduled auto-updates and aborts every request in flight.
func (u *Updater) Close() {
	u.timerMu.Lock()
	for key, t := range u.timers {
		if t.Stop() {
			u.pending.Done()
		}
		delete(u.timers, key)
	}
	u.timerMu.Unlock()
	u.requests.cancelAll(core.ErrAborted)
}

// Record returns the last updated version of the record identified by id.
func (u *Updater) Record(id any) (core.Record, bool) {
	key, err := core.NormalizeID(u.model, id)
	if err != nil {
		return nil, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	rec, ok := u.records[key]
	return rec.Clone(), ok
}

// Updating reports whether an update of id is in flight.
func (u *Updater) Updating(id any) bool {
	key, err := core.NormalizeID(u.model, id)
	if err != nil {
		return false
	}
	return u.requests.inFlight(updateLane(key))
}

// Cancel aborts the update of id in flight.
func (u *Updater) Cancel(id any) bool {
	key, err := core.NormalizeID(u.model, id)
	if err != nil {
		return false
	}
	return u.requests.cancel(updateLane(key), core.ErrAborted)
}

// Update applies the merge defaults, the form bound to id and form, in
// increasing precedence, to the record identified by id.
func (u *Updater) Update(ctx context.Context, id any, form core.Form) (*core.Response, error) {
	key, err := core.NormalizeID(u.model, id)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	bound := u.forms[key].Clone()
	u.mu.Unlock()
	data := u.merged(bound, form)

	var spec *speculation
	if u.opts.Optimistic {
		spec = u.speculate(key, data)
	}

	req := u.requests.start(updateLane(key), core.ActionUpdate, key)
	opts, release := u.callOptions(req)
	resp, err := u.runtime.Update(ctx, u.model, key, data, opts)
	release()

	latest := u.requests.settle(req)
	settled := outcome(resp, err)
	if settled == nil || !settled.Success {
		if spec != nil {
			u.resolve(key, spec, false)
		}
		if settled != nil && latest {
			u.apply(settled)
		}
		return resp, err
	}

	if spec != nil {
		u.resolve(key, spec, true)
	}
	u.persist([]core.Record{settled.Record}, nil)
	if latest {
		u.mu.Lock()
		u.records[key] = settled.Record.Clone()
		if f, ok := u.forms[key]; ok {
			for k, v := range settled.Record {
				f[k] = v
			}
		}
		u.mu.Unlock()
		u.apply(settled)
	}
	return resp, err
}

// speculation is the state of one key before its optimistic writes. pending
// counts the optimistic updates of that key not yet settled.
type speculation struct {
	stored    core.Record
	hadStored bool
	local     core.Record
	hadLocal  bool
	pending   int
}

// speculate writes the merged record before the driver settles. Overlapping
// updates of a key share the speculation opened by the first of them.
func (u *Updater) speculate(key string, data core.Form) *speculation {
	stored, hadStored := u.snapshot(key)
	u.mu.Lock()
	spec, ok := u.speculations[key]
	if !ok {
		local, hadLocal := u.records[key]
		spec = &speculation{stored: stored, hadStored: hadStored, local: local, hadLocal: hadLocal}
		u.speculations[key] = spec
	}
	spec.pending++

	current := u.records[key]
	if hadStored {
		current = stored
	}
	speculative := current.Merge(data)
	for _, field := range u.model.PrimaryKey {
		if v, ok := current[field]; ok {
			speculative[field] = v
		}
	}
	u.records[key] = speculative
	u.mu.Unlock()

	if u.persisting() && hadStored {
		if _, err := u.store.Repo(u.model).Replace(speculative); err != nil && u.opts.Logger != nil {
			u.opts.Logger.Warn("optimistic update failed", "entity", u.model.Entity, "id", key, "error", err)
		}
	}
	u.changed()
	return spec
}

// resolve settles one optimistic update of key. A success closes the
// speculation. A failure restores the state preceding it once no other
// optimistic update of key is pending.
func (u *Updater) resolve(key string, spec *speculation, ok bool) {
	u.mu.Lock()
	if u.speculations[key] != spec {
		u.mu.Unlock()
		return
	}
	spec.pending--
	if ok {
		delete(u.speculations, key)
		u.mu.Unlock()
		return
	}
	if spec.pending > 0 {
		u.mu.Unlock()
		return
	}
	delete(u.speculations, key)
	if spec.hadLocal {
		u.records[key] = spec.local
	} else {
		delete(u.records, key)
	}
	u.mu.Unlock()

	if u.persisting() && spec.hadStored {
		if _, err := u.store.Repo(u.model).Replace(spec.stored); err != nil && u.opts.Logger != nil {
			u.opts.Logger.Warn("optimistic rollback failed", "entity", u.model.Entity, "id", key, "error", err)
		}
	}
	u.changed()
}
