package typed

import (
	"sync"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// View reads the records of one entity held in a store as T.
type View[T any] struct {
	store *store.Store
	model *core.Model
}

// NewView creates a view of m in s.
func NewView[T any](s *store.Store, m *core.Model) *View[T] {
	return &View[T]{store: s, model: m}
}

// Get decodes the stored record identified by id.
func (v *View[T]) Get(id any) (T, bool, error) {
	var out T
	rec, ok := v.store.Repo(v.model).Find(id)
	if !ok {
		return out, false, nil
	}
	if err := fromRecord(rec, &out); err != nil {
		return out, true, err
	}
	return out, true, nil
}

// All decodes every stored record, in insertion order.
func (v *View[T]) All() ([]T, error) {
	records := v.store.Repo(v.model).All()
	out := make([]T, len(records))
	for i, rec := range records {
		if err := fromRecord(rec, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Watch forwards the store events of the entity until stop is called.
func (v *View[T]) Watch(buffer int) (<-chan core.Event, func()) {
	events, unsubscribe := v.store.Subscribe(buffer)
	out := make(chan core.Event, buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Entity != v.model.Entity {
					continue
				}
				select {
				case out <- e:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			unsubscribe()
		})
	}
}
