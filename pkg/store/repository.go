package store

import (
	"sync"

	"github.com/aretw0/strata/pkg/core"
)

// Repository holds the records of one entity in insertion order.
type Repository struct {
	store *Store
	model *core.Model

	mu      sync.RWMutex
	keys    []string
	records map[string]core.Record
}

type change struct {
	kind core.EventType
	key  string
}

// Model returns the model the repository stores.
func (r *Repository) Model() *core.Model {
	return r.model
}

// Insert adds records whose key is not present yet. Existing records are left
// untouched. It returns the key of every input record.
func (r *Repository) Insert(records ...core.Record) ([]string, error) {
	return r.write(records, false, false)
}

// Save merges records over existing ones, creating the missing ones.
func (r *Repository) Save(records ...core.Record) ([]string, error) {
	return r.write(records, true, true)
}

// Replace stores records as given, dropping fields absent from them.
func (r *Repository) Replace(records ...core.Record) ([]string, error) {
	return r.write(records, true, false)
}

func (r *Repository) write(records []core.Record, overwrite, merge bool) ([]string, error) {
	prepared := make([]core.Record, len(records))
	keys := make([]string, len(records))
	for i, rec := range records {
		key, err := core.KeyOf(r.model, rec)
		if err != nil {
			return nil, err
		}
		flat, err := r.store.normalize(r.model, rec, overwrite)
		if err != nil {
			return nil, err
		}
		prepared[i] = flat.Clone()
		keys[i] = key
	}

	var changes []change
	r.mu.Lock()
	for i, rec := range prepared {
		key := keys[i]
		existing, ok := r.records[key]
		switch {
		case !ok:
			r.records[key] = rec
			r.keys = append(r.keys, key)
			changes = append(changes, change{core.EventCreate, key})
		case !overwrite:
			continue
		case merge:
			r.records[key] = existing.Merge(core.Form(rec))
			changes = append(changes, change{core.EventModify, key})
		default:
			r.records[key] = rec
			changes = append(changes, change{core.EventModify, key})
		}
	}
	r.mu.Unlock()

	r.publish(changes)
	return keys, nil
}

// Find looks a record up by any accepted form of its primary key.
func (r *Repository) Find(id any) (core.Record, bool) {
	key, err := core.NormalizeID(r.model, id)
	if err != nil {
		return nil, false
	}
	return r.Get(key)
}

// Get looks a record up by canonical key. The result is a copy.
func (r *Repository) Get(key string) (core.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Has reports whether key is stored.
func (r *Repository) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[key]
	return ok
}

// All returns copies of every record in insertion order.
func (r *Repository) All() []core.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Record, 0, len(r.keys))
	for _, key := range r.keys {
		out = append(out, r.records[key].Clone())
	}
	return out
}

// Keys returns the stored keys in insertion order.
func (r *Repository) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.keys...)
}

// Where returns copies of the records matching fn.
func (r *Repository) Where(fn func(core.Record) bool) []core.Record {
	var out []core.Record
	for _, rec := range r.All() {
		if fn(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Count returns the number of stored records.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Delete removes the given keys and returns the removed records.
func (r *Repository) Delete(keys ...string) []core.Record {
	if len(keys) == 0 {
		return nil
	}
	var (
		removed []core.Record
		changes []change
	)
	r.mu.Lock()
	drop := make(map[string]bool, len(keys))
	for _, key := range keys {
		rec, ok := r.records[key]
		if !ok || drop[key] {
			continue
		}
		drop[key] = true
		removed = append(removed, rec)
		delete(r.records, key)
		changes = append(changes, change{core.EventDelete, key})
	}
	if len(drop) > 0 {
		kept := r.keys[:0]
		for _, key := range r.keys {
			if !drop[key] {
				kept = append(kept, key)
			}
		}
		r.keys = kept
	}
	r.mu.Unlock()

	r.publish(changes)
	return removed
}

// Flush removes every record.
func (r *Repository) Flush() {
	r.Delete(r.Keys()...)
}

func (r *Repository) publish(changes []change) {
	for _, c := range changes {
		r.store.emit(c.kind, r.model.Entity, c.key)
	}
}
