// Package composable provides stateful wrappers around the CRUD actions:
// Creator, Finder, Indexer, Updater and Destroyer. Each one tracks its
// in-flight requests, lets the latest request win, applies results to the
// shared store and to its own view, and can work optimistically, rolling
// speculative changes back when the action fails.
//
// State is guarded internally, so a composable may be driven from several
// goroutines. Hooks run outside of the lock and never affect rollback.
package composable

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// Hooks observe the outcome of every applied request.
type Hooks struct {
	OnSuccess         func(*core.Response)
	OnError           func(*core.Response)
	OnStandardError   func([]core.StandardError)
	OnValidationError func(core.ValidationErrors)
	// OnChange runs after the composable state changed.
	OnChange func()
}

// Options configures a composable.
type Options struct {
	// Call holds the defaults of every action call (filters, scopes, driver...).
	Call core.Options
	// Persist writes results into the store. Defaults to true when a store is set.
	Persist *bool
	// PersistBy selects the store write strategy. Defaults to save.
	PersistBy store.PersistBy
	// Optimistic applies the expected result before the driver settles.
	Optimistic bool
	// AutoUpdate makes Updater form edits schedule a debounced update.
	AutoUpdate bool
	// AutoUpdateDebounce is the call level of the debounce window.
	AutoUpdateDebounce *time.Duration
	// Merge contributes default fields to create and update forms. Explicit
	// and bound form fields take precedence.
	Merge func(form core.Form) core.Form
	Hooks Hooks
	// KeyGen generates keys for optimistic creates. Defaults to UUIDv4.
	KeyGen func() string
	Logger *slog.Logger
}

// Option configures Options.
type Option func(*Options)

// WithCallOptions sets the defaults of every action call.
func WithCallOptions(opts core.Options) Option {
	return func(o *Options) {
		o.Call = opts
	}
}

// WithDriver routes every call to the named driver.
func WithDriver(name string) Option {
	return func(o *Options) {
		o.Call.Driver = name
	}
}

// WithPersist enables or disables store writes.
func WithPersist(persist bool) Option {
	return func(o *Options) {
		o.Persist = &persist
	}
}

// WithPersistBy selects the store write strategy.
func WithPersistBy(by store.PersistBy) Option {
	return func(o *Options) {
		o.PersistBy = by
	}
}

// WithOptimistic enables optimistic updates.
func WithOptimistic() Option {
	return func(o *Options) {
		o.Optimistic = true
	}
}

// WithAutoUpdate enables debounced updates on form edits. A nil debounce
// resolves the window through the configuration chain.
func WithAutoUpdate(debounce *time.Duration) Option {
	return func(o *Options) {
		o.AutoUpdate = true
		o.AutoUpdateDebounce = debounce
	}
}

// WithMerge sets the default fields hook.
func WithMerge(fn func(form core.Form) core.Form) Option {
	return func(o *Options) {
		o.Merge = fn
	}
}

// WithHooks sets the outcome hooks.
func WithHooks(h Hooks) Option {
	return func(o *Options) {
		o.Hooks = h
	}
}

// WithKeyGen sets the key generator of optimistic creates.
func WithKeyGen(fn func() string) Option {
	return func(o *Options) {
		o.KeyGen = fn
	}
}

// WithLogger sets the logger used to report hook panics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// base holds what every composable shares.
type base struct {
	runtime  *actions.Runtime
	model    *core.Model
	store    *store.Store
	opts     Options
	requests *requests

	mu       sync.Mutex
	response *core.Response
	standard []core.StandardError
	invalid  core.ValidationErrors
}

func newBase(rt *actions.Runtime, m *core.Model, s *store.Store, opts []Option) base {
	o := Options{PersistBy: store.PersistSave}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = rt.Logger
	}
	return base{
		runtime:  rt,
		model:    m,
		store:    s,
		opts:     o,
		requests: newRequests(),
	}
}

// Model returns the model the composable works on.
func (b *base) Model() *core.Model {
	return b.model
}

// Response returns the last applied response.
func (b *base) Response() *core.Response {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.response
}

// StandardErrors returns the standard errors of the last applied response.
func (b *base) StandardErrors() []core.StandardError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.StandardError(nil), b.standard...)
}

// ValidationErrors returns the field errors of the last applied response.
func (b *base) ValidationErrors() core.ValidationErrors {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(core.ValidationErrors, len(b.invalid))
	for k, v := range b.invalid {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Requests returns the in-flight requests, oldest first.
func (b *base) Requests() []Request {
	return b.requests.list()
}

// SetCallOptions replaces the defaults of later calls.
func (b *base) SetCallOptions(fn func(*core.Options)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.opts.Call)
}

func (b *base) persisting() bool {
	if b.store == nil {
		return false
	}
	return b.opts.Persist == nil || *b.opts.Persist
}

// callOptions returns the options of one call bound to req. An abort of the
// caller's own signal propagates to the request.
func (b *base) callOptions(req *Request) (core.Options, func()) {
	b.mu.Lock()
	opts := b.opts.Call
	b.mu.Unlock()

	release := func() {}
	if user := opts.Signal; user != nil {
		release = user.Subscribe(func(reason error) { req.controller.Abort(reason) })
	}
	opts.Signal = req.Signal()
	return opts, release
}

// outcome normalizes what an action returned. A thrown failure still carries
// its Response.
func outcome(resp *core.Response, err error) *core.Response {
	if resp != nil {
		return resp
	}
	if r, ok := core.AsResponse(err); ok {
		return r
	}
	return nil
}

// apply stores resp's error fields and runs the hooks. It must be called
// without holding b.mu.
func (b *base) apply(resp *core.Response) {
	b.mu.Lock()
	b.response = resp
	if resp.Success {
		b.standard = nil
		b.invalid = nil
	} else {
		b.standard = append([]core.StandardError(nil), resp.StandardErrors...)
		b.invalid = resp.ValidationErrors
	}
	b.mu.Unlock()

	h := b.opts.Hooks
	if resp.Success {
		b.hook("onSuccess", func() {
			if h.OnSuccess != nil {
				h.OnSuccess(resp)
			}
		})
	} else {
		b.hook("onError", func() {
			if h.OnError != nil {
				h.OnError(resp)
			}
		})
		if len(resp.StandardErrors) > 0 {
			b.hook("onStandardError", func() {
				if h.OnStandardError != nil {
					h.OnStandardError(resp.StandardErrors)
				}
			})
		}
		if len(resp.ValidationErrors) > 0 {
			b.hook("onValidationError", func() {
				if h.OnValidationError != nil {
					h.OnValidationError(resp.ValidationErrors)
				}
			})
		}
	}
	b.changed()
}

func (b *base) changed() {
	if fn := b.opts.Hooks.OnChange; fn != nil {
		b.hook("onChange", fn)
	}
}

// hook runs fn, containing panics.
func (b *base) hook(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil && b.opts.Logger != nil {
			b.opts.Logger.Error("composable hook panicked",
				"entity", b.model.Entity,
				"hook", name,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	fn()
}

// persist writes records with the configured strategy.
func (b *base) persist(records []core.Record, previous []string) []string {
	return b.persistBy(b.opts.PersistBy, records, previous)
}

func (b *base) persistBy(by store.PersistBy, records []core.Record, previous []string) []string {
	if !b.persisting() || len(records) == 0 && len(previous) == 0 {
		return nil
	}
	keys, err := b.store.Persist(b.model, by, records, previous)
	if err != nil && b.opts.Logger != nil {
		b.opts.Logger.Warn("store write failed", "entity", b.model.Entity, "error", err)
	}
	return keys
}

// merged builds a form from the merge defaults, the bound form and the
// explicit argument, in increasing precedence.
func (b *base) merged(bound, explicit core.Form) core.Form {
	out := core.Form{}
	if b.opts.Merge != nil {
		for k, v := range b.opts.Merge(mergeInput(bound, explicit)) {
			out[k] = v
		}
	}
	for k, v := range bound {
		out[k] = v
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}

func mergeInput(bound, explicit core.Form) core.Form {
	in := bound.Clone()
	if in == nil {
		in = core.Form{}
	}
	for k, v := range explicit {
		in[k] = v
	}
	return in
}

// driverName resolves the driver later calls will use.
func (b *base) driverName() (string, error) {
	b.mu.Lock()
	name := b.opts.Call.Driver
	b.mu.Unlock()
	resolved, _, err := b.runtime.Drivers.Resolve(name)
	return resolved, err
}

// snapshot reads the stored record of key, if any.
func (b *base) snapshot(key string) (core.Record, bool) {
	if b.store == nil {
		return nil, false
	}
	return b.store.Repo(b.model).Get(key)
}
