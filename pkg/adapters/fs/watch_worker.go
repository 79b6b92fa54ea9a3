package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/strata/pkg/core"
)

type watchWorker struct {
	*worker.BaseWorker
	repo      *Repository
	pattern   string
	events    chan<- core.Event
	debouncer *debouncer

	// watcher is set once Start subscribed every entity directory.
	watcherMu sync.Mutex
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc

	// known tracks existing record files, so an atomic replace (seen as a
	// create) is reported as a modification.
	mu    sync.Mutex
	known map[string]bool
}

func newWatchWorker(repo *Repository, pattern string, events chan<- core.Event) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		repo:       repo,
		pattern:    pattern,
		events:     events,
		known:      make(map[string]bool),
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.repo.recursiveAdd(watcher); err != nil {
		_ = watcher.Close()
		return err
	}
	if w.repo.config.Versioned {
		_ = watcher.Add(filepath.Join(w.repo.Path, ".git"))
	}
	w.seedKnown()

	w.watcherMu.Lock()
	w.watcher = watcher
	w.watcherMu.Unlock()
	w.debouncer = newDebouncer(50 * time.Millisecond)
	w.repo.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

// subscription returns the fsnotify watcher, nil before Start subscribed.
func (w *watchWorker) subscription() *fsnotify.Watcher {
	w.watcherMu.Lock()
	defer w.watcherMu.Unlock()
	return w.watcher
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"pattern":           w.pattern,
		}
	})
}

func (w *watchWorker) seedKnown() {
	entities, err := os.ReadDir(w.repo.Path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, dir := range entities {
		if !dir.IsDir() || w.repo.isSystemDir(dir.Name()) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(w.repo.Path, dir.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if _, ok := w.repo.keyOf(f.Name()); ok {
				w.known[dir.Name()+"/"+f.Name()] = true
			}
		}
	}
}

// handleGitLockEvent tracks .git/index.lock so events are paused while git
// rewrites the tree. It reports whether the event was a lock event.
func (w *watchWorker) handleGitLockEvent(event fsnotify.Event, gitLocked *bool) (handled bool, gitLockedNew bool) {
	gitLockedNew = *gitLocked
	if filepath.Base(event.Name) != "index.lock" || filepath.Base(filepath.Dir(event.Name)) != ".git" {
		return false, gitLockedNew
	}
	if event.Has(fsnotify.Create) {
		gitLockedNew = true
		w.debug("git operations detected, pausing watcher")
	} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		gitLockedNew = false
		w.debug("git operations finished, reconciling")
	}
	return true, gitLockedNew
}

// reconcileAfterGitUnlock replays the changes missed while git held its lock.
func (w *watchWorker) reconcileAfterGitUnlock(ctx context.Context) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		reconciled, err := w.repo.Reconcile(ctx)
		if err != nil {
			w.repo.report(fmt.Errorf("reconcile failed: %w", err))
			return err
		}
		for _, e := range reconciled {
			if match, _ := matchPattern(w.pattern, e); match {
				w.sendEvent(ctx, e)
			}
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		w.repo.report(fmt.Errorf("reconcile panic: %w", err))
	}))
}

// processFilesystemEvent filters, maps and debounces one fsnotify event.
func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) bool {
	w.debug("event received", "name", event.Name)

	// New entity directories have to be watched explicitly.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.repo.isSystemDir(filepath.Base(event.Name)) {
				_ = w.watcher.Add(event.Name)
			}
			return false
		}
	}

	if w.repo.shouldIgnore(event, w.pattern) {
		return false
	}
	eType := w.repo.mapEventType(event)
	if eType == "" {
		return false
	}

	entity, id, err := w.repo.resolveID(event.Name)
	if err != nil {
		w.repo.report(fmt.Errorf("failed to resolve ID for %s: %w", event.Name, err))
		return false
	}

	rel := entity + "/" + filepath.Base(event.Name)
	w.mu.Lock()
	switch eType {
	case core.EventCreate:
		if w.known[rel] {
			eType = core.EventModify
		}
		w.known[rel] = true
	case core.EventDelete:
		delete(w.known, rel)
	}
	w.mu.Unlock()

	w.sendEvent(ctx, core.Event{
		Type:      eType,
		Entity:    entity,
		ID:        id,
		Timestamp: time.Now().Unix(),
	})
	return true
}

// sendEvent enqueues an event via the debouncer. A send racing the channel
// close during shutdown is dropped.
func (w *watchWorker) sendEvent(ctx context.Context, event core.Event) {
	w.debouncer.add(event, func(e core.Event) {
		defer func() {
			_ = recover()
		}()
		select {
		case w.events <- e:
		case <-ctx.Done():
		}
	})
}

func (w *watchWorker) handleWatcherError(err error) {
	if w.repo.config.Logger != nil {
		w.repo.config.Logger.Error("fsnotify error", "error", err)
	}
	if w.repo.config.ErrorHandler != nil {
		w.repo.config.ErrorHandler(err)
	}
}

func (w *watchWorker) debug(msg string, args ...any) {
	if w.repo.config.Logger != nil {
		w.repo.config.Logger.Debug(msg, args...)
	}
}

// run is the main event loop of the worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)
			err = panicErr
			logger := w.repo.config.Logger
			if logger == nil {
				return
			}
			// Stacks are only worth their noise at debug level.
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Error("watcher panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				logger.Error("watcher panic", "error", panicErr)
			}
		}
	}()
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	var gitLocked bool
	err = w.mainEventLoop(ctx, &gitLocked)

	// Let scheduled events fire before the caller closes the channel.
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchWorker) mainEventLoop(ctx context.Context, gitLocked *bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}

			if handled, locked := w.handleGitLockEvent(event, gitLocked); handled {
				*gitLocked = locked
				if !*gitLocked {
					w.reconcileAfterGitUnlock(ctx)
				}
				continue
			}
			if *gitLocked {
				continue
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleWatcherError(wErr)
		}
	}
}

func matchPattern(pattern string, e core.Event) (bool, error) {
	return doublestar.Match(pattern, e.Entity+"/"+e.ID)
}
