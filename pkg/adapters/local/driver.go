// Package local implements core.Driver on top of any core.Repository. Queries
// are evaluated in memory with pkg/query, so the repository only has to save,
// get, list and delete records.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/query"
)

// Config configures a Driver.
type Config struct {
	// Name identifies the driver in logs and warnings.
	Name   string
	Logger *slog.Logger
	Schema *core.Schema
	// Latency delays every operation, simulating a slow backend.
	Latency time.Duration
	// Features restricts the supported capabilities. Nil enables all of them.
	Features core.Features
	// KeyGen generates single primary keys on create. Defaults to UUIDv4.
	KeyGen func() string
}

// Driver is a core.Driver over a core.Repository.
type Driver struct {
	repo   core.Repository
	config Config
	warner *query.Warner

	mu         sync.Mutex
	failNext   []error
	failAlways error
}

// New creates a driver over repo.
func New(repo core.Repository, config Config) *Driver {
	if config.Name == "" {
		config.Name = "local"
	}
	if config.Features == nil {
		config.Features = core.AllFeatures()
	}
	if config.KeyGen == nil {
		config.KeyGen = uuid.NewString
	}
	if config.Schema == nil {
		config.Schema = core.NewSchema()
	}
	return &Driver{
		repo:   repo,
		config: config,
		warner: query.NewWarner(config.Name, config.Logger),
	}
}

// Repository returns the backing repository.
func (d *Driver) Repository() core.Repository {
	return d.repo
}

// Features implements core.Driver.
func (d *Driver) Features() core.Features {
	return d.config.Features
}

// FailNext makes the next call fail with err. Calls queue up.
func (d *Driver) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = append(d.failNext, err)
}

// FailAlways makes every call fail with err until cleared.
func (d *Driver) FailAlways(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAlways = err
}

// ClearFailures drops every mocked failure.
func (d *Driver) ClearFailures() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = nil
	d.failAlways = nil
}

// MockError builds a transport-like failure for FailNext and FailAlways.
func MockError(message string, status int) error {
	return &core.DriverError{Name: core.ErrorStandard, Message: message, Status: status}
}

// begin applies the simulated latency, then any mocked failure.
func (d *Driver) begin(ctx context.Context) error {
	if d.config.Latency > 0 {
		t := time.NewTimer(d.config.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.failNext) > 0 {
		err := d.failNext[0]
		d.failNext = d.failNext[1:]
		return err
	}
	return d.failAlways
}

func (d *Driver) translator() *query.Translator {
	return &query.Translator{
		Schema:   d.config.Schema,
		Features: d.config.Features,
		Warner:   d.warner,
	}
}

func (d *Driver) evaluator() *query.Evaluator {
	return query.NewEvaluator(d.config.Schema, func(ctx context.Context, entity string) ([]core.Record, error) {
		m, ok := d.config.Schema.Model(entity)
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownModel, entity)
		}
		return d.repo.List(ctx, m)
	})
}

// Index implements core.Driver.
func (d *Driver) Index(ctx context.Context, m *core.Model, opts core.DriverOptions) (core.IndexResult, error) {
	if err := d.begin(ctx); err != nil {
		return core.IndexResult{}, err
	}
	q, err := d.translator().Translate(core.ActionIndex, m, opts)
	if err != nil {
		return core.IndexResult{}, err
	}
	all, err := d.repo.List(ctx, m)
	if err != nil {
		return core.IndexResult{}, err
	}
	records, pagination, err := d.evaluator().Run(ctx, q, all)
	if err != nil {
		return core.IndexResult{}, err
	}
	return core.IndexResult{Records: records, Pagination: pagination}, nil
}

// Find implements core.Driver. Filters act as an extra constraint: a record
// that does not satisfy them is reported as not found.
func (d *Driver) Find(ctx context.Context, m *core.Model, id string, opts core.DriverOptions) (core.Record, error) {
	if err := d.begin(ctx); err != nil {
		return nil, err
	}
	q, err := d.translator().Translate(core.ActionFind, m, opts)
	if err != nil {
		return nil, err
	}
	rec, err := d.get(ctx, m, id)
	if err != nil {
		return nil, err
	}
	ev := d.evaluator()
	ok, err := ev.Match(ctx, rec, q.Filters)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NotFound(m.Entity, id)
	}
	return ev.Hydrate(ctx, m, rec, q.Includes)
}

// Create implements core.Driver. A missing single primary key is generated.
func (d *Driver) Create(ctx context.Context, m *core.Model, form core.Form, opts core.DriverOptions) (core.Record, error) {
	if err := d.begin(ctx); err != nil {
		return nil, err
	}
	rec := core.Record(form.Clone())
	if rec == nil {
		rec = core.Record{}
	}
	if !m.Composite() {
		if v, ok := rec[m.PrimaryKey[0]]; !ok || v == nil || v == "" {
			rec[m.PrimaryKey[0]] = d.config.KeyGen()
		}
	}
	key, err := core.KeyOf(m, rec)
	if err != nil {
		return nil, err
	}

	if _, err := d.repo.Get(ctx, m, key); err == nil {
		return nil, &core.DriverError{
			Name:    core.ErrorStandard,
			Message: fmt.Sprintf("%s %q already exists", m.Entity, key),
			Status:  http.StatusConflict,
			Err:     core.ErrAlreadyExists,
		}
	}
	if err := d.repo.Save(ctx, m, key, rec); err != nil {
		return nil, err
	}
	if d.config.Logger != nil {
		d.config.Logger.Debug("record created", "driver", d.config.Name, "entity", m.Entity, "id", key)
	}
	return rec.Clone(), nil
}

// Update implements core.Driver. Primary key fields cannot be changed.
func (d *Driver) Update(ctx context.Context, m *core.Model, id string, form core.Form, opts core.DriverOptions) (core.Record, error) {
	if err := d.begin(ctx); err != nil {
		return nil, err
	}
	existing, err := d.get(ctx, m, id)
	if err != nil {
		return nil, err
	}
	merged := merge(m, existing, form)
	if err := d.repo.Save(ctx, m, id, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Destroy implements core.Driver.
func (d *Driver) Destroy(ctx context.Context, m *core.Model, id string, opts core.DriverOptions) (core.Record, error) {
	if err := d.begin(ctx); err != nil {
		return nil, err
	}
	existing, err := d.get(ctx, m, id)
	if err != nil {
		return nil, err
	}
	if err := d.repo.Delete(ctx, m, id); err != nil {
		return nil, err
	}
	return existing, nil
}

// BulkUpdate implements core.Driver. Transactional repositories apply every
// form or none of them.
func (d *Driver) BulkUpdate(ctx context.Context, m *core.Model, forms map[string]core.Form, opts core.DriverOptions) ([]core.Record, error) {
	if err := d.begin(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(forms))
	for k := range forms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if tr, ok := d.repo.(core.Transactional); ok {
		return d.bulkTx(ctx, tr, m, keys, forms)
	}

	out := make([]core.Record, 0, len(keys))
	for _, key := range keys {
		existing, err := d.get(ctx, m, key)
		if err != nil {
			return nil, err
		}
		merged := merge(m, existing, forms[key])
		if err := d.repo.Save(ctx, m, key, merged); err != nil {
			return nil, err
		}
		out = append(out, merged)
	}
	return out, nil
}

func (d *Driver) bulkTx(ctx context.Context, tr core.Transactional, m *core.Model, keys []string, forms map[string]core.Form) (records []core.Record, err error) {
	tx, err := tr.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && d.config.Logger != nil {
				d.config.Logger.Error("bulk update rollback failed", "driver", d.config.Name, "error", rbErr)
			}
		}
	}()

	out := make([]core.Record, 0, len(keys))
	for _, key := range keys {
		existing, err := tx.Get(ctx, m, key)
		if err != nil {
			return nil, notFound(m, key, err)
		}
		merged := merge(m, existing, forms[key])
		if err := tx.Save(ctx, m, key, merged); err != nil {
			return nil, err
		}
		out = append(out, merged)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) get(ctx context.Context, m *core.Model, key string) (core.Record, error) {
	rec, err := d.repo.Get(ctx, m, key)
	if err != nil {
		return nil, notFound(m, key, err)
	}
	return rec, nil
}

func notFound(m *core.Model, key string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFound(m.Entity, key)
	}
	return err
}

// merge applies form over existing, keeping the primary key fields.
func merge(m *core.Model, existing core.Record, form core.Form) core.Record {
	merged := existing.Merge(form)
	for _, field := range m.PrimaryKey {
		if v, ok := existing[field]; ok {
			merged[field] = v
		}
	}
	return merged
}
