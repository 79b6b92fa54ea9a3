package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/aretw0/strata/pkg/core"
)

// indexEntry is what the cache knows about one record file.
type indexEntry struct {
	Entity       string    `json:"entity"`
	Key          string    `json:"key"`
	LastModified time.Time `json:"lastModified"`

	// rec is the decoded record, kept in memory only.
	rec core.Record
}

// index is the persistent part of the cache.
type index struct {
	Version int                    `json:"version"`
	Entries map[string]*indexEntry `json:"entries"` // keyed by path relative to the root
	dirty   bool
	mu      sync.RWMutex
}

// cache remembers decoded records by file mtime so List only parses files
// that changed. The file index survives restarts and lets Reconcile report
// changes made while nothing was watching.
type cache struct {
	Path  string
	index *index
}

func newCache(root, systemDir string) *cache {
	return &cache{
		Path: filepath.Join(root, systemDir, "index.json"),
		index: &index{
			Version: 1,
			Entries: make(map[string]*indexEntry),
		},
	}
}

// Load reads the index from disk. A missing or corrupted file yields an empty index.
func (c *cache) Load() error {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	var loaded struct {
		Version int                    `json:"version"`
		Entries map[string]*indexEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &loaded); err != nil || loaded.Entries == nil {
		c.index.Entries = make(map[string]*indexEntry)
		return nil
	}
	c.index.Version = loaded.Version
	c.index.Entries = loaded.Entries
	c.index.dirty = false
	return nil
}

// Save persists the index when it changed since the last Load or Save.
func (c *cache) Save() error {
	c.index.mu.RLock()
	if !c.index.dirty {
		c.index.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(struct {
		Version int                    `json:"version"`
		Entries map[string]*indexEntry `json:"entries"`
	}{c.index.Version, c.index.Entries}, "", "  ")
	c.index.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(c.Path, data, 0644); err != nil {
		return err
	}

	c.index.mu.Lock()
	c.index.dirty = false
	c.index.mu.Unlock()
	return nil
}

// Get returns the decoded record of relPath when it was cached for mtime.
func (c *cache) Get(relPath string, mtime time.Time) (core.Record, bool) {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	entry, ok := c.index.Entries[relPath]
	if !ok || entry.rec == nil || !entry.LastModified.Equal(mtime) {
		return nil, false
	}
	return entry.rec.Clone(), true
}

// Set records relPath as holding rec, last modified at mtime.
func (c *cache) Set(relPath, entity, key string, rec core.Record, mtime time.Time) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	c.index.Entries[relPath] = &indexEntry{
		Entity:       entity,
		Key:          key,
		LastModified: mtime,
		rec:          rec.Clone(),
	}
	c.index.dirty = true
}

// Prune drops the entries of entity that are not in keep.
func (c *cache) Prune(entity string, keep map[string]bool) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	for path, entry := range c.index.Entries {
		if entry.Entity == entity && !keep[path] {
			delete(c.index.Entries, path)
			c.index.dirty = true
		}
	}
}

// Delete removes a single entry.
func (c *cache) Delete(relPath string) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	if _, ok := c.index.Entries[relPath]; ok {
		delete(c.index.Entries, relPath)
		c.index.dirty = true
	}
}

// Snapshot copies the entries, without their records.
func (c *cache) Snapshot() map[string]indexEntry {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	out := make(map[string]indexEntry, len(c.index.Entries))
	for k, v := range c.index.Entries {
		out[k] = indexEntry{Entity: v.Entity, Key: v.Key, LastModified: v.LastModified}
	}
	return out
}

// Len returns the number of entries.
func (c *cache) Len() int {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()
	return len(c.index.Entries)
}
