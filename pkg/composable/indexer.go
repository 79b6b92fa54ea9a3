package composable

import (
	"context"
	"fmt"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

const laneIndex = "index"

// Indexer lists records and walks their pages.
type Indexer struct {
	base

	records    []core.Record
	keys       []string // keys of the current page, cleared by replace strategies
	page       int
	pagination *core.Pagination
}

// NewIndexer creates an Indexer for m. s may be nil, which disables persistence.
func NewIndexer(rt *actions.Runtime, m *core.Model, s *store.Store, opts ...Option) *Indexer {
	return &Indexer{base: newBase(rt, m, s, opts), page: 1}
}

// Records returns the records of the current page.
func (ix *Indexer) Records() []core.Record {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]core.Record, len(ix.records))
	for i, r := range ix.records {
		out[i] = r.Clone()
	}
	return out
}

// Pagination returns the pagination of the last successful index.
func (ix *Indexer) Pagination() *core.Pagination {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.pagination == nil {
		return nil
	}
	p := *ix.pagination
	return &p
}

// Page returns the current page.
func (ix *Indexer) Page() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.page
}

// PagesCount returns the page count of the last successful index.
func (ix *Indexer) PagesCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.pagination == nil {
		return 0
	}
	return ix.pagination.PagesCount
}

// IsFirstPage reports whether the current page is the first one.
func (ix *Indexer) IsFirstPage() bool {
	return ix.Page() <= 1
}

// IsLastPage reports whether the current page is the last known one.
func (ix *Indexer) IsLastPage() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.pagination == nil || ix.page >= ix.pagination.PagesCount
}

// Indexing reports whether an index is in flight.
func (ix *Indexer) Indexing() bool {
	return ix.requests.inFlight(laneIndex)
}

// Cancel aborts the index in flight.
func (ix *Indexer) Cancel() bool {
	return ix.requests.cancel(laneIndex, core.ErrAborted)
}

// Index lists the current page.
func (ix *Indexer) Index(ctx context.Context) (*core.Response, error) {
	return ix.index(ctx, ix.Page())
}

// Next lists the page after the current one.
func (ix *Indexer) Next(ctx context.Context) (*core.Response, error) {
	if err := ix.requirePages(); err != nil {
		return nil, err
	}
	return ix.index(ctx, ix.Page()+1)
}

// Previous lists the page before the current one.
func (ix *Indexer) Previous(ctx context.Context) (*core.Response, error) {
	if err := ix.requirePages(); err != nil {
		return nil, err
	}
	return ix.index(ctx, ix.Page()-1)
}

// ToPage lists page n. Out of range pages fail, they are never clamped.
func (ix *Indexer) ToPage(ctx context.Context, n int) (*core.Response, error) {
	if err := ix.requirePages(); err != nil {
		return nil, err
	}
	return ix.index(ctx, n)
}

// ToFirstPage lists the first page.
func (ix *Indexer) ToFirstPage(ctx context.Context) (*core.Response, error) {
	return ix.ToPage(ctx, 1)
}

// ToLastPage lists the last page. When no index ran yet the first page is
// fetched to learn the page count.
func (ix *Indexer) ToLastPage(ctx context.Context) (*core.Response, error) {
	if err := ix.requirePages(); err != nil {
		return nil, err
	}
	if ix.PagesCount() == 0 {
		resp, err := ix.index(ctx, 1)
		if resp == nil || !resp.Success {
			return resp, err
		}
	}
	last := ix.PagesCount()
	if last < 1 {
		last = 1
	}
	return ix.index(ctx, last)
}

// requirePages fails when no records-per-page value resolves for the calls.
func (ix *Indexer) requirePages() error {
	driver, err := ix.driverName()
	if err != nil {
		return err
	}
	ix.mu.Lock()
	var call *int
	if p := ix.opts.Call.Pagination; p != nil && p.RecordsPerPage > 0 {
		call = &p.RecordsPerPage
	}
	ix.mu.Unlock()
	if ix.runtime.Config.RecordsPerPage(driver, call) <= 0 {
		return fmt.Errorf("%w: %s", core.ErrNoRecordsPerPage, ix.model.Entity)
	}
	return nil
}

func (ix *Indexer) index(ctx context.Context, page int) (*core.Response, error) {
	req := ix.requests.start(laneIndex, core.ActionIndex, "")
	opts, release := ix.callOptions(req)
	p := core.Pagination{}
	if opts.Pagination != nil {
		p.RecordsPerPage = opts.Pagination.RecordsPerPage
	}
	p.Page = &page
	opts.Pagination = &p

	resp, err := ix.runtime.Index(ctx, ix.model, opts)
	release()

	latest := ix.requests.settle(req)
	settled := outcome(resp, err)
	if settled == nil || !latest {
		return resp, err
	}

	if settled.Success {
		ix.mu.Lock()
		previous := ix.keys
		ix.mu.Unlock()

		keys := ix.persist(settled.Records, previous)

		ix.mu.Lock()
		ix.records = make([]core.Record, len(settled.Records))
		for i, r := range settled.Records {
			ix.records[i] = r.Clone()
		}
		if ix.persisting() {
			ix.keys = keys
		}
		ix.page = page
		if settled.Pagination != nil {
			pg := *settled.Pagination
			ix.pagination = &pg
		}
		ix.mu.Unlock()
	}
	ix.apply(settled)
	return resp, err
}
