// Package store is the shared in-memory record store composables write into.
// It keeps one repository per entity, keyed by canonical primary key, and
// broadcasts a core.Event for every change.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/core"
)

// PersistBy selects how a batch of records is written into the store.
type PersistBy string

const (
	// PersistInsert adds records and never overwrites existing ones.
	PersistInsert PersistBy = "insert"
	// PersistSave merges records over existing ones.
	PersistSave PersistBy = "save"
	// PersistReplaceSave clears the previous page's records, then saves.
	PersistReplaceSave PersistBy = "replace-save"
	// PersistReplaceInsert clears the previous page's records, then inserts.
	PersistReplaceInsert PersistBy = "replace-insert"
)

// Valid reports whether p names a known strategy.
func (p PersistBy) Valid() bool {
	switch p {
	case PersistInsert, PersistSave, PersistReplaceSave, PersistReplaceInsert:
		return true
	}
	return false
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store holds the repositories of every entity.
type Store struct {
	schema *core.Schema
	logger *slog.Logger

	mu    sync.Mutex
	repos map[string]*Repository

	subMu   sync.RWMutex
	subs    map[int]chan core.Event
	nextSub int
}

// New creates an empty store. The schema is used to split hydrated relations
// into their own repositories.
func New(schema *core.Schema, opts ...Option) *Store {
	s := &Store{
		schema: schema,
		repos:  make(map[string]*Repository),
		subs:   make(map[int]chan core.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repo returns the repository of m, creating it on first use.
func (s *Store) Repo(m *core.Model) *Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[m.Entity]
	if !ok {
		r = &Repository{store: s, model: m, records: make(map[string]core.Record)}
		s.repos[m.Entity] = r
	}
	return r
}

// Subscribe registers a listener receiving every change. Slow listeners miss
// events once buffer is full. Call the returned func to unsubscribe.
func (s *Store) Subscribe(buffer int) (<-chan core.Event, func()) {
	ch := make(chan core.Event, buffer)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Flush empties every repository.
func (s *Store) Flush() {
	s.mu.Lock()
	repos := make([]*Repository, 0, len(s.repos))
	for _, r := range s.repos {
		repos = append(repos, r)
	}
	s.mu.Unlock()
	for _, r := range repos {
		r.Flush()
	}
}

// Persist writes records of m with the given strategy. For the replace
// strategies the records under previous are removed first. It returns the
// keys written, in input order.
func (s *Store) Persist(m *core.Model, by PersistBy, records []core.Record, previous []string) ([]string, error) {
	repo := s.Repo(m)
	switch by {
	case PersistInsert:
		return repo.Insert(records...)
	case PersistSave, "":
		return repo.Save(records...)
	case PersistReplaceSave:
		repo.Delete(previous...)
		return repo.Save(records...)
	case PersistReplaceInsert:
		repo.Delete(previous...)
		return repo.Insert(records...)
	}
	return nil, fmt.Errorf("unknown persist strategy %q", by)
}

func (s *Store) emit(t core.EventType, entity, key string) {
	e := core.Event{Type: t, Entity: entity, ID: key, Timestamp: time.Now().Unix()}
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			if s.logger != nil {
				s.logger.Debug("store event dropped", "event", e.String())
			}
		}
	}
}

// normalize splits hydrated relations off rec and writes them into their own
// repositories. Related records are inserted unless overwrite is set.
func (s *Store) normalize(m *core.Model, rec core.Record, overwrite bool) (core.Record, error) {
	if s.schema == nil || len(m.Relations) == 0 {
		return rec, nil
	}
	out := rec
	for name := range m.Relations {
		v, ok := rec[name]
		if !ok {
			continue
		}
		out = out.Without(name)

		related, rel, err := s.schema.Related(m, name)
		if err != nil {
			return nil, err
		}
		nested := relatedRecords(v)
		if len(nested) == 0 {
			continue
		}

		var pivots []core.Record
		if rel.Kind == core.BelongsToMany {
			if pivot, ok := s.schema.Model(rel.Pivot); ok {
				for i, n := range nested {
					if p, ok := n["pivot"].(core.Record); ok {
						pivots = append(pivots, p)
					}
					nested[i] = n.Without("pivot")
				}
				if len(pivots) > 0 {
					if err := s.write(pivot, pivots, true); err != nil {
						return nil, err
					}
				}
			}
		}
		if err := s.write(related, nested, overwrite); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) write(m *core.Model, records []core.Record, overwrite bool) error {
	repo := s.Repo(m)
	var err error
	if overwrite {
		_, err = repo.Save(records...)
	} else {
		_, err = repo.Insert(records...)
	}
	return err
}

func relatedRecords(v any) []core.Record {
	switch x := v.(type) {
	case core.Record:
		return []core.Record{x}
	case map[string]any:
		return []core.Record{core.Record(x)}
	case []core.Record:
		return append([]core.Record(nil), x...)
	case []any:
		out := make([]core.Record, 0, len(x))
		for _, item := range x {
			switch r := item.(type) {
			case core.Record:
				out = append(out, r)
			case map[string]any:
				out = append(out, core.Record(r))
			}
		}
		return out
	}
	return nil
}
