package fs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/strata/pkg/core"
)

var errTxClosed = errors.New("transaction closed")

type stagedRecord struct {
	model *core.Model
	key   string
	rec   core.Record
}

// Transaction implements core.Transaction for the filesystem. Staged writes
// reach the disk on Commit, as a single git commit when versioned.
type Transaction struct {
	repo    *Repository
	staged  map[string]stagedRecord // "<entity>/<key>" -> record
	deleted map[string]stagedRecord
	mu      sync.Mutex
	closed  bool
}

// NewTransaction creates a transaction over repo.
func NewTransaction(repo *Repository) *Transaction {
	return &Transaction{
		repo:    repo,
		staged:  make(map[string]stagedRecord),
		deleted: make(map[string]stagedRecord),
	}
}

func stagedID(m *core.Model, key string) string {
	return m.Entity + "/" + key
}

// Save stages a record.
func (t *Transaction) Save(ctx context.Context, m *core.Model, key string, rec core.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTxClosed
	}
	id := stagedID(m, key)
	t.staged[id] = stagedRecord{model: m, key: key, rec: rec.Clone()}
	delete(t.deleted, id)
	return nil
}

// Get retrieves a record, favoring staged changes.
func (t *Transaction) Get(ctx context.Context, m *core.Model, key string) (core.Record, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errTxClosed
	}
	id := stagedID(m, key)
	if _, ok := t.deleted[id]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %q", core.ErrNotFound, m.Entity, key)
	}
	if s, ok := t.staged[id]; ok {
		t.mu.Unlock()
		return s.rec.Clone(), nil
	}
	t.mu.Unlock()
	return t.repo.Get(ctx, m, key)
}

// Delete stages a removal.
func (t *Transaction) Delete(ctx context.Context, m *core.Model, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTxClosed
	}
	id := stagedID(m, key)
	t.deleted[id] = stagedRecord{model: m, key: key}
	delete(t.staged, id)
	return nil
}

// Commit writes every staged record, then applies the removals.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTxClosed
	}

	added := make([]string, len(t.staged))
	ids := sortedIDs(t.staged)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.repo.config.Concurrency)
	for i, id := range ids {
		s := t.staged[id]
		g.Go(func() error {
			rel, err := t.repo.write(gctx, s.model, s.key, s.rec)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", id, err)
			}
			added[i] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var removed []string
	for _, id := range sortedIDs(t.deleted) {
		s := t.deleted[id]
		rel, err := t.repo.remove(ctx, s.model, s.key)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", id, err)
		}
		removed = append(removed, rel)
	}

	if err := t.repo.commit(ctx, "batch transaction update", added, removed); err != nil {
		return err
	}
	if err := t.repo.cache.Save(); err != nil {
		t.repo.report(fmt.Errorf("cache save: %w", err))
	}
	t.closed = true
	return nil
}

// Rollback discards all staged changes.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.staged = nil
	t.deleted = nil
	t.closed = true
	return nil
}

func sortedIDs(m map[string]stagedRecord) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
