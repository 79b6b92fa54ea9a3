// Package actions implements the stateless CRUD operations. Each one resolves
// its configuration, routes the call to a registered driver and normalizes the
// result into a core.Response.
//
// Expected failures (aborted, not found, validation, transport) come back as a
// Response with Success false, or as a *core.ResponseError when throw resolves
// true. Programmer errors (unknown driver, missing primary key, unknown scope or
// relation) are always returned as the error value.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/query"
	"github.com/aretw0/strata/pkg/registry"
)

// Runtime carries what the actions need: configuration, drivers and schema.
type Runtime struct {
	Config  *config.Context
	Drivers *registry.Registry
	Schema  *core.Schema
	Logger  *slog.Logger
}

// New creates a runtime. A nil cfg gets a fresh configuration context.
func New(cfg *config.Context, schema *core.Schema, logger *slog.Logger) *Runtime {
	if cfg == nil {
		cfg = config.New()
	}
	if schema == nil {
		schema = core.NewSchema()
	}
	return &Runtime{
		Config:  cfg,
		Drivers: registry.New(cfg),
		Schema:  schema,
		Logger:  logger,
	}
}

func (r *Runtime) config() *config.Context {
	if r.Config == nil {
		r.Config = config.New()
	}
	return r.Config
}

// Model returns the model registered for entity.
func (r *Runtime) Model(entity string) (*core.Model, error) {
	if r.Schema != nil {
		if m, ok := r.Schema.Model(entity); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnknownModel, entity)
}

// Create stores a new record built from form.
func (r *Runtime) Create(ctx context.Context, m *core.Model, form core.Form, opts core.Options) (*core.Response, error) {
	form = form.Clone()
	return r.dispatch(ctx, invocation{action: core.ActionCreate, model: m, opts: opts},
		func(ctx context.Context, d core.Driver, dopts core.DriverOptions, resp *core.Response) error {
			rec, err := d.Create(ctx, m, form, dopts)
			resp.Record = rec
			return err
		})
}

// Find fetches one record by primary key.
func (r *Runtime) Find(ctx context.Context, m *core.Model, id any, opts core.Options) (*core.Response, error) {
	key, err := core.NormalizeID(m, id)
	if err != nil {
		return nil, err
	}
	return r.dispatch(ctx, invocation{action: core.ActionFind, model: m, opts: opts},
		func(ctx context.Context, d core.Driver, dopts core.DriverOptions, resp *core.Response) error {
			rec, err := d.Find(ctx, m, key, dopts)
			resp.Record = rec
			return err
		})
}

// Index lists records. When a page size resolves through the configuration
// chain, the page reported by the driver is validated against its page count.
func (r *Runtime) Index(ctx context.Context, m *core.Model, opts core.Options) (*core.Response, error) {
	return r.dispatch(ctx, invocation{action: core.ActionIndex, model: m, opts: opts, paginate: true},
		func(ctx context.Context, d core.Driver, dopts core.DriverOptions, resp *core.Response) error {
			res, err := d.Index(ctx, m, dopts)
			if err != nil {
				return err
			}
			if res.Pagination != nil {
				p := *res.Pagination
				if dopts.Pagination != nil {
					if p.RecordsPerPage == 0 {
						p.RecordsPerPage = dopts.Pagination.RecordsPerPage
					}
					if p.Page == nil {
						p.Page = dopts.Pagination.Page
					}
				}
				if p.PagesCount == 0 {
					p.PagesCount = core.PagesFor(p.RecordsCount, p.RecordsPerPage)
				}
				if err := query.Check(&p); err != nil {
					return err
				}
				resp.Pagination = &p
			}
			resp.Records = res.Records
			if resp.Records == nil {
				resp.Records = []core.Record{}
			}
			return nil
		})
}

// Update applies form to the record identified by id. Omitted fields are kept.
func (r *Runtime) Update(ctx context.Context, m *core.Model, id any, form core.Form, opts core.Options) (*core.Response, error) {
	key, err := core.NormalizeID(m, id)
	if err != nil {
		return nil, err
	}
	form = form.Clone()
	return r.dispatch(ctx, invocation{action: core.ActionUpdate, model: m, opts: opts},
		func(ctx context.Context, d core.Driver, dopts core.DriverOptions, resp *core.Response) error {
			rec, err := d.Update(ctx, m, key, form, dopts)
			resp.Record = rec
			return err
		})
}

// Destroy removes the record identified by id and returns it.
func (r *Runtime) Destroy(ctx context.Context, m *core.Model, id any, opts core.Options) (*core.Response, error) {
	key, err := core.NormalizeID(m, id)
	if err != nil {
		return nil, err
	}
	return r.dispatch(ctx, invocation{action: core.ActionDestroy, model: m, opts: opts},
		func(ctx context.Context, d core.Driver, dopts core.DriverOptions, resp *core.Response) error {
			rec, err := d.Destroy(ctx, m, key, dopts)
			resp.Record = rec
			return err
		})
}

// BulkUpdate applies several forms keyed by primary key.
func (r *Runtime) BulkUpdate(ctx context.Context, m *core.Model, forms map[string]core.Form, opts core.Options) (*core.Response, error) {
	normalized := make(map[string]core.Form, len(forms))
	for id, form := range forms {
		key, err := core.NormalizeID(m, id)
		if err != nil {
			return nil, err
		}
		normalized[key] = form.Clone()
	}
	return r.dispatch(ctx, invocation{action: core.ActionBulkUpdate, model: m, opts: opts},
		func(ctx context.Context, d core.Driver, dopts core.DriverOptions, resp *core.Response) error {
			recs, err := d.BulkUpdate(ctx, m, normalized, dopts)
			resp.Records = recs
			return err
		})
}

// Sync reconciles the belongsToMany relation of one record with forms, keyed
// by related primary key and carrying pivot attributes.
func (r *Runtime) Sync(ctx context.Context, m *core.Model, id any, relation string, forms map[string]core.Form, opts core.Options) (*core.Response, error) {
	key, err := core.NormalizeID(m, id)
	if err != nil {
		return nil, err
	}
	rel, ok := m.Relation(relation)
	if !ok || rel.Kind != core.BelongsToMany {
		return nil, fmt.Errorf("%w: %s.%s is not a belongsToMany relation", core.ErrUnknownRelation, m.Entity, relation)
	}
	normalized := make(map[string]core.Form, len(forms))
	for rid, form := range forms {
		normalized[rid] = form.Clone()
	}
	return r.dispatch(ctx, invocation{action: core.ActionSync, model: m, opts: opts},
		func(ctx context.Context, d core.Driver, dopts core.DriverOptions, resp *core.Response) error {
			res, err := d.Sync(ctx, m, key, relation, normalized, dopts)
			if err != nil {
				return err
			}
			resp.Sync = &res
			return nil
		})
}
