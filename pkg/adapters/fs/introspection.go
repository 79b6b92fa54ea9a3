package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState is the observable state of a Repository.
type RepositoryState struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Versioned bool   `json:"versioned"`
	ReadOnly  bool   `json:"read_only"`
	// Records counts the indexed record files per entity.
	Records       map[string]int `json:"records"`
	WatcherActive bool           `json:"watcher_active"`
	LastReconcile *time.Time     `json:"last_reconcile,omitempty"`
}

func (r *Repository) State() any {
	records := make(map[string]int)
	for _, e := range r.cache.Snapshot() {
		records[e.Entity]++
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return RepositoryState{
		Path:          r.Path,
		Format:        r.serializer.Ext()[1:],
		Versioned:     r.config.Versioned,
		ReadOnly:      r.readOnly,
		Records:       records,
		WatcherActive: r.watcherActive,
		LastReconcile: r.lastReconcile,
	}
}

func (r *Repository) ComponentType() string {
	return "fs-repository"
}

var (
	_ introspection.Introspectable = (*Repository)(nil)
	_ introspection.Component      = (*Repository)(nil)
)

func (r *Repository) setWatcherActive(active bool) {
	r.mu.Lock()
	r.watcherActive = active
	r.mu.Unlock()
}

func (r *Repository) recordReconcile() {
	now := time.Now()
	r.mu.Lock()
	r.lastReconcile = &now
	r.mu.Unlock()
}
