package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/strata/pkg/core"
)

// Watch reports changes made to record files, including those made by other
// processes. pattern is a doublestar glob matched against "<entity>/<key>";
// "" and "**" match everything. The channel closes once ctx is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}

	events := make(chan core.Event)
	w := newWatchWorker(r, pattern, events)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := w.Stop(stopCtx)
		close(events)
		return err
	}, lifecycle.WithErrorHandler(func(err error) {
		r.report(fmt.Errorf("watcher shutdown: %w", err))
	}))
	return events, nil
}

// Reconcile compares the files on disk with the cache index and returns the
// changes it had not seen, updating the index. It catches up on edits made
// while nothing was watching, or during a git operation.
func (r *Repository) Reconcile(ctx context.Context) ([]core.Event, error) {
	known := r.cache.Snapshot()
	seen := make(map[string]bool)
	now := time.Now().Unix()
	var events []core.Event

	entities, err := os.ReadDir(r.Path)
	if err != nil {
		return nil, err
	}
	for _, dir := range entities {
		if !dir.IsDir() || r.isSystemDir(dir.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entity := dir.Name()
		files, err := os.ReadDir(filepath.Join(r.Path, entity))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			key, ok := r.keyOf(f.Name())
			if f.IsDir() || !ok {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			rel := entity + "/" + f.Name()
			seen[rel] = true

			prev, had := known[rel]
			switch {
			case !had:
				events = append(events, core.Event{Type: core.EventCreate, Entity: entity, ID: key, Timestamp: now})
			case !prev.LastModified.Equal(info.ModTime()):
				events = append(events, core.Event{Type: core.EventModify, Entity: entity, ID: key, Timestamp: now})
			default:
				continue
			}
			r.cache.Set(rel, entity, key, nil, info.ModTime())
		}
	}

	for rel, entry := range known {
		if !seen[rel] {
			events = append(events, core.Event{Type: core.EventDelete, Entity: entry.Entity, ID: entry.Key, Timestamp: now})
			r.cache.Delete(rel)
		}
	}

	if err := r.cache.Save(); err != nil {
		r.report(fmt.Errorf("cache save: %w", err))
	}
	r.recordReconcile()
	return events, nil
}

func (r *Repository) isSystemDir(name string) bool {
	return name == ".git" || name == r.config.SystemDir
}

// recursiveAdd watches the root and every entity directory below it.
func (r *Repository) recursiveAdd(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(r.Path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.Path, err)
	}
	entries, err := os.ReadDir(r.Path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || r.isSystemDir(e.Name()) {
			continue
		}
		if err := watcher.Add(filepath.Join(r.Path, e.Name())); err != nil {
			return fmt.Errorf("failed to watch %s: %w", e.Name(), err)
		}
	}
	return nil
}

// resolveID maps a record file path back to its entity and key.
func (r *Repository) resolveID(path string) (string, string, error) {
	rel, err := filepath.Rel(r.Path, path)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%s is not a record file", rel)
	}
	key, ok := r.keyOf(parts[1])
	if !ok {
		return "", "", fmt.Errorf("%s is not a record file", rel)
	}
	return parts[0], key, nil
}

// shouldIgnore filters temp files, system directories, foreign extensions and
// records outside pattern.
func (r *Repository) shouldIgnore(event fsnotify.Event, pattern string) bool {
	if isTempFile(event.Name) {
		return true
	}
	rel, err := filepath.Rel(r.Path, event.Name)
	if err != nil {
		return true
	}
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	if r.isSystemDir(first) {
		return true
	}
	entity, key, err := r.resolveID(event.Name)
	if err != nil {
		return true
	}
	match, _ := doublestar.Match(pattern, entity+"/"+key)
	return !match
}

func (r *Repository) mapEventType(event fsnotify.Event) core.EventType {
	switch {
	case event.Has(fsnotify.Create):
		return core.EventCreate
	case event.Has(fsnotify.Write):
		return core.EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return core.EventDelete
	}
	return ""
}
