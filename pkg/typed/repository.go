// Package typed maps records onto user structs. Repository[T] runs the CRUD
// actions and decodes their records into T; View[T] reads a store the same way.
package typed

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
)

// Document is a typed view of one record.
type Document[T any] struct {
	ID    string
	Data  T
	Saver Saver[T]
}

// Saver avoids coupling documents to a concrete repository.
type Saver[T any] interface {
	Save(ctx context.Context, doc *Document[T]) error
}

// Save persists the document through the repository it came from.
func (d *Document[T]) Save(ctx context.Context) error {
	if d.Saver == nil {
		return fmt.Errorf("document is detached (missing Saver)")
	}
	return d.Saver.Save(ctx, d)
}

// Page is one page of typed documents.
type Page[T any] struct {
	Documents  []*Document[T]
	Pagination *core.Pagination
}

// Repository gives type-safe access to one entity. Failed actions are
// returned as errors: a *core.ResponseError for expected failures, which
// unwraps to sentinels such as core.ErrNotFound.
type Repository[T any] struct {
	runtime *actions.Runtime
	model   *core.Model
	opts    core.Options
}

// NewRepository creates a repository of entity. opts are the defaults of
// every call.
func NewRepository[T any](rt *actions.Runtime, entity string, opts core.Options) (*Repository[T], error) {
	m, err := rt.Model(entity)
	if err != nil {
		return nil, err
	}
	opts.Throw = core.Ptr(true)
	return &Repository[T]{runtime: rt, model: m, opts: opts}, nil
}

// Model returns the entity model.
func (r *Repository[T]) Model() *core.Model {
	return r.model
}

func (r *Repository[T]) call(query func(*core.Options)) core.Options {
	opts := r.opts
	if query != nil {
		query(&opts)
		opts.Throw = core.Ptr(true)
	}
	return opts
}

// Create stores data and returns the created document.
func (r *Repository[T]) Create(ctx context.Context, data T) (*Document[T], error) {
	form, err := toForm(data)
	if err != nil {
		return nil, err
	}
	resp, err := r.runtime.Create(ctx, r.model, form, r.call(nil))
	if err != nil {
		return nil, err
	}
	return r.document(resp.Record)
}

// Get finds the document identified by id.
func (r *Repository[T]) Get(ctx context.Context, id any) (*Document[T], error) {
	resp, err := r.runtime.Find(ctx, r.model, id, r.call(nil))
	if err != nil {
		return nil, err
	}
	return r.document(resp.Record)
}

// List returns the documents matching the defaults refined by query.
func (r *Repository[T]) List(ctx context.Context, query func(*core.Options)) (*Page[T], error) {
	resp, err := r.runtime.Index(ctx, r.model, r.call(query))
	if err != nil {
		return nil, err
	}
	page := &Page[T]{
		Documents:  make([]*Document[T], 0, len(resp.Records)),
		Pagination: resp.Pagination,
	}
	for _, rec := range resp.Records {
		doc, err := r.document(rec)
		if err != nil {
			return nil, err
		}
		page.Documents = append(page.Documents, doc)
	}
	return page, nil
}

// Save updates the record of doc with its data. Zero values are sent too,
// use omitempty tags to leave fields untouched.
func (r *Repository[T]) Save(ctx context.Context, doc *Document[T]) error {
	form, err := toForm(doc.Data)
	if err != nil {
		return err
	}
	resp, err := r.runtime.Update(ctx, r.model, doc.ID, form, r.call(nil))
	if err != nil {
		return err
	}
	if err := fromRecord(resp.Record, &doc.Data); err != nil {
		return err
	}
	if doc.Saver == nil {
		doc.Saver = r
	}
	return nil
}

// Delete destroys the record identified by id.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	_, err := r.runtime.Destroy(ctx, r.model, id, r.call(nil))
	return err
}

func (r *Repository[T]) document(rec core.Record) (*Document[T], error) {
	key, err := core.KeyOf(r.model, rec)
	if err != nil {
		return nil, err
	}
	doc := &Document[T]{ID: key, Saver: r}
	if err := fromRecord(rec, &doc.Data); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", r.model.Entity, key, err)
	}
	return doc, nil
}

func toForm(data any) (core.Form, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed data: %w", err)
	}
	var form core.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("typed data is not an object: %w", err)
	}
	return form, nil
}

func fromRecord(rec core.Record, out any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record marshal failed: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return nil
}
