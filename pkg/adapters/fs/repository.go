// Package fs implements core.Repository on the local filesystem. Each record
// lives in its own file under <root>/<entity>/, named after its escaped key,
// in JSON, YAML or CBOR. Writes are atomic, reads go through an mtime keyed
// cache, and a data directory can optionally be versioned with git.
package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/git"
)

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	SystemDir string // e.g. ".strata"; holds the cache index
	Format    string // json (default), yaml or cbor
	Strict    bool   // decode JSON numbers as json.Number
	MustExist bool
	ReadOnly  bool
	// Versioned commits every write to a git repository rooted at Path.
	Versioned    bool
	Logger       *slog.Logger
	ErrorHandler func(error)
	// Concurrency bounds parallel file reads in List. Defaults to 8.
	Concurrency int
}

// Repository implements core.Repository using the filesystem.
type Repository struct {
	Path       string
	config     Config
	serializer Serializer
	cache      *cache
	git        *git.Client
	loads      singleflight.Group

	mu            sync.RWMutex
	readOnly      bool
	watcherActive bool
	lastReconcile *time.Time
}

// NewRepository creates a filesystem-backed repository.
func NewRepository(config Config) (*Repository, error) {
	if config.SystemDir == "" {
		config.SystemDir = ".strata"
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	s, err := NewSerializer(config.Format, config.Strict)
	if err != nil {
		return nil, err
	}
	return &Repository{
		Path:       config.Path,
		config:     config,
		serializer: s,
		cache:      newCache(config.Path, config.SystemDir),
		git:        git.NewClient(config.Path, config.SystemDir+".lock", config.Logger),
		readOnly:   config.ReadOnly,
	}, nil
}

// IsGitInstalled checks if git is available in the system path.
func IsGitInstalled() bool {
	return git.IsInstalled()
}

// Initialize creates the data directory, loads the cache index and, when
// versioned, prepares the git repository.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("data path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("data path is not a directory: %s", r.Path)
		}
	} else if err := os.MkdirAll(r.Path, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := r.cache.Load(); err != nil {
		r.report(fmt.Errorf("cache load: %w", err))
	}

	if !r.config.Versioned {
		return nil
	}
	if !git.IsInstalled() {
		return git.ErrNotInstalled
	}
	wasNewRepo := false
	if !r.git.IsRepo() {
		if err := r.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
		wasNewRepo = true
	}
	mod, err := r.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}
	if mod && wasNewRepo {
		return r.commit(ctx, fmt.Sprintf("chore: ignore %s", r.config.SystemDir), []string{".gitignore"}, nil)
	}
	return nil
}

func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	entries := []string{r.config.SystemDir + "/", r.config.SystemDir + ".lock", TempFilePrefix + "*"}

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	present := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, e := range entries {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	out := string(content)
	if len(out) > 0 && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	out += strings.Join(missing, "\n") + "\n"
	return true, writeFileAtomic(ignorePath, []byte(out), 0644)
}

// SetReadOnly switches read-only mode. Writes then fail with core.ErrReadOnly.
func (r *Repository) SetReadOnly(readOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = readOnly
}

// IsReadOnly reports whether writes are refused.
func (r *Repository) IsReadOnly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readOnly
}

// Save writes rec to its file, replacing any previous content.
func (r *Repository) Save(ctx context.Context, m *core.Model, key string, rec core.Record) error {
	rel, err := r.write(ctx, m, key, rec)
	if err != nil {
		return err
	}
	return r.commit(ctx, fmt.Sprintf("save %s/%s", m.Entity, key), []string{rel}, nil)
}

func (r *Repository) write(ctx context.Context, m *core.Model, key string, rec core.Record) (string, error) {
	if r.IsReadOnly() {
		return "", core.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rec = rec.Clone()
	if rec == nil {
		rec = core.Record{}
	}
	if err := core.AssignKey(m, rec, key); err != nil {
		return "", err
	}

	rel, full := r.paths(m.Entity, key)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	data, err := r.serializer.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s/%s: %w", m.Entity, key, err)
	}
	if err := writeFileAtomic(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	// The cache holds the decoded form so later reads see the same types.
	if info, err := os.Stat(full); err == nil {
		if decoded, err := r.serializer.Unmarshal(data); err == nil {
			r.cache.Set(rel, m.Entity, key, decoded, info.ModTime())
		}
	}
	return rel, nil
}

// Get reads the record stored under key.
func (r *Repository) Get(ctx context.Context, m *core.Model, key string) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, full := r.paths(m.Entity, key)
	rec, err := r.load(rel, full, m.Entity, key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s %q", core.ErrNotFound, m.Entity, key)
	}
	return rec, err
}

// load reads one file through the cache. Concurrent loads of the same file
// share a single read.
func (r *Repository) load(rel, full, entity, key string) (core.Record, error) {
	v, err, _ := r.loads.Do(rel, func() (any, error) {
		info, err := os.Stat(full)
		if err != nil {
			return nil, err
		}
		if rec, hit := r.cache.Get(rel, info.ModTime()); hit {
			return rec, nil
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, err
		}
		rec, err := r.serializer.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", rel, err)
		}
		r.cache.Set(rel, entity, key, rec, info.ModTime())
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.Record).Clone(), nil
}

// List reads every record of the entity, ordered by key. Numeric keys sort
// numerically.
func (r *Repository) List(ctx context.Context, m *core.Model) ([]core.Record, error) {
	dir := filepath.Join(r.Path, m.Entity)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []core.Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	type item struct {
		key string
		rel string
	}
	var items []item
	for _, e := range entries {
		key, ok := r.keyOf(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		items = append(items, item{key: key, rel: filepath.ToSlash(filepath.Join(m.Entity, e.Name()))})
	}
	sort.SliceStable(items, func(i, j int) bool { return lessKey(items[i].key, items[j].key) })

	records := make([]core.Record, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := r.load(it.rel, filepath.Join(r.Path, filepath.FromSlash(it.rel)), m.Entity, it.key)
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				if r.config.Logger != nil {
					r.config.Logger.Warn("skipping unreadable record", "path", it.rel, "error", err)
				}
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(items))
	out := make([]core.Record, 0, len(records))
	for i, rec := range records {
		if rec != nil {
			out = append(out, rec)
			seen[items[i].rel] = true
		}
	}
	r.cache.Prune(m.Entity, seen)
	if err := r.cache.Save(); err != nil {
		r.report(fmt.Errorf("cache save: %w", err))
	}
	return out, nil
}

// Delete removes the file of key.
func (r *Repository) Delete(ctx context.Context, m *core.Model, key string) error {
	rel, err := r.remove(ctx, m, key)
	if err != nil {
		return err
	}
	return r.commit(ctx, fmt.Sprintf("delete %s/%s", m.Entity, key), nil, []string{rel})
}

func (r *Repository) remove(ctx context.Context, m *core.Model, key string) (string, error) {
	if r.IsReadOnly() {
		return "", core.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, full := r.paths(m.Entity, key)
	if err := removeRecordFile(full); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s %q", core.ErrNotFound, m.Entity, key)
		}
		return "", fmt.Errorf("failed to remove file: %w", err)
	}
	r.cache.Delete(rel)
	return rel, nil
}

// Begin starts a transaction.
func (r *Repository) Begin(ctx context.Context) (core.Transaction, error) {
	if r.IsReadOnly() {
		return nil, core.ErrReadOnly
	}
	return NewTransaction(r), nil
}

// commit records the given paths in git when the repository is versioned.
func (r *Repository) commit(ctx context.Context, msg string, add, rm []string) error {
	if !r.config.Versioned || (len(add) == 0 && len(rm) == 0) {
		return nil
	}
	unlock, err := r.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := r.git.Add(ctx, add...); err != nil {
		return fmt.Errorf("failed to git add: %w", err)
	}
	if err := r.git.Rm(ctx, rm...); err != nil {
		return fmt.Errorf("failed to git rm: %w", err)
	}
	if err := r.git.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

// History returns the last n commit subjects of a versioned repository.
func (r *Repository) History(ctx context.Context, n int) ([]string, error) {
	if !r.config.Versioned {
		return nil, fmt.Errorf("repository is not versioned")
	}
	return r.git.Log(ctx, n)
}

// paths returns the slash separated path of a record relative to the root,
// and its absolute path.
func (r *Repository) paths(entity, key string) (string, string) {
	name := url.PathEscape(key) + r.serializer.Ext()
	rel := entity + "/" + name
	return rel, filepath.Join(r.Path, entity, name)
}

// keyOf recovers the key from a record file name.
func (r *Repository) keyOf(name string) (string, bool) {
	if isTempFile(name) || filepath.Ext(name) != r.serializer.Ext() {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, r.serializer.Ext()))
	if err != nil {
		return "", false
	}
	return key, true
}

func (r *Repository) report(err error) {
	if r.config.ErrorHandler != nil {
		r.config.ErrorHandler(err)
		return
	}
	if r.config.Logger != nil {
		r.config.Logger.Debug("fs repository", "error", err)
	}
}

func lessKey(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		return fa < fb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

var _ core.Transactional = (*Repository)(nil)
var _ core.Watchable = (*Repository)(nil)
