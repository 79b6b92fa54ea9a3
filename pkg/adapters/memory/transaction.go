package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/strata/pkg/core"
)

var errClosed = errors.New("transaction closed")

type stagedKey struct {
	entity string
	key    string
}

type staged struct {
	model *core.Model
	rec   core.Record
}

// Transaction buffers writes until Commit.
type Transaction struct {
	repo    *Repository
	mu      sync.Mutex
	saves   map[stagedKey]staged
	deletes map[stagedKey]*core.Model
	order   []stagedKey
	closed  bool
}

func newTransaction(repo *Repository) *Transaction {
	return &Transaction{
		repo:    repo,
		saves:   make(map[stagedKey]staged),
		deletes: make(map[stagedKey]*core.Model),
	}
}

// Save stages a record.
func (t *Transaction) Save(ctx context.Context, m *core.Model, key string, rec core.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	k := stagedKey{m.Entity, key}
	if _, ok := t.saves[k]; !ok {
		t.order = append(t.order, k)
	}
	t.saves[k] = staged{model: m, rec: rec.Clone()}
	delete(t.deletes, k)
	return nil
}

// Get favors staged changes over the repository.
func (t *Transaction) Get(ctx context.Context, m *core.Model, key string) (core.Record, error) {
	t.mu.Lock()
	k := stagedKey{m.Entity, key}
	if t.closed {
		t.mu.Unlock()
		return nil, errClosed
	}
	if _, gone := t.deletes[k]; gone {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %q", core.ErrNotFound, m.Entity, key)
	}
	if s, ok := t.saves[k]; ok {
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
		return errClosed
	}
	k := stagedKey{m.Entity, key}
	t.deletes[k] = m
	delete(t.saves, k)
	return nil
}

// Commit applies the staged writes in the order they were first staged,
// then the removals.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	for _, k := range t.order {
		s, ok := t.saves[k]
		if !ok {
			continue
		}
		if err := t.repo.Save(ctx, s.model, k.key, s.rec); err != nil {
			return fmt.Errorf("commit %s %q: %w", k.entity, k.key, err)
		}
	}
	for k, m := range t.deletes {
		if err := t.repo.Delete(ctx, m, k.key); err != nil && !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("commit delete %s %q: %w", k.entity, k.key, err)
		}
	}
	t.closed = true
	return nil
}

// Rollback discards the staged changes.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.saves = nil
	t.deletes = nil
	t.order = nil
	t.closed = true
	return nil
}
