// Package memory adapts the shared record store to core.Repository, so the
// local driver can serve records straight from process memory.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/strata/pkg/adapters/local"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// Repository implements core.Repository on a store.Store.
type Repository struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRepository wraps s. A nil s gets a fresh store without schema.
func NewRepository(s *store.Store, logger *slog.Logger) *Repository {
	if s == nil {
		s = store.New(nil, store.WithLogger(logger))
	}
	return &Repository{store: s, logger: logger}
}

// NewDriver builds a local driver serving the records of s.
func NewDriver(s *store.Store, config local.Config) *local.Driver {
	return local.New(NewRepository(s, config.Logger), config)
}

// Store returns the wrapped store.
func (r *Repository) Store() *store.Store {
	return r.store
}

// Initialize implements core.Repository. Memory needs no setup.
func (r *Repository) Initialize(ctx context.Context) error {
	return ctx.Err()
}

// Save implements core.Repository. The record replaces any stored one.
func (r *Repository) Save(ctx context.Context, m *core.Model, key string, rec core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec = rec.Clone()
	if rec == nil {
		rec = core.Record{}
	}
	if err := core.AssignKey(m, rec, key); err != nil {
		return err
	}
	_, err := r.store.Repo(m).Replace(rec)
	return err
}

// Get implements core.Repository.
func (r *Repository) Get(ctx context.Context, m *core.Model, key string) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := r.store.Repo(m).Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", core.ErrNotFound, m.Entity, key)
	}
	return rec, nil
}

// List implements core.Repository. Records come in insertion order.
func (r *Repository) List(ctx context.Context, m *core.Model) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.Repo(m).All(), nil
}

// Delete implements core.Repository.
func (r *Repository) Delete(ctx context.Context, m *core.Model, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if removed := r.store.Repo(m).Delete(key); len(removed) == 0 {
		return fmt.Errorf("%w: %s %q", core.ErrNotFound, m.Entity, key)
	}
	return nil
}

// Begin implements core.Transactional.
func (r *Repository) Begin(ctx context.Context) (core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newTransaction(r), nil
}

// Watch implements core.Watchable. pattern is a doublestar glob matched
// against "<entity>/<key>"; "" and "**" match everything. The channel closes
// when ctx is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}

	in, unsubscribe := r.store.Subscribe(64)
	out := make(chan core.Event)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-in:
				if !ok {
					return nil
				}
				if match, _ := doublestar.Match(pattern, e.Entity+"/"+e.ID); !match {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		if r.logger != nil {
			r.logger.Error("memory watcher panic", "error", err)
		}
	}))
	return out, nil
}

var _ core.Transactional = (*Repository)(nil)
var _ core.Watchable = (*Repository)(nil)
