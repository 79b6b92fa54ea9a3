package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/fixtures"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/query"
)

func newTestRepo(t *testing.T, cfg Config) *Repository {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = t.TempDir()
	}
	repo, err := NewRepository(cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(context.Background()))
	return repo
}

func model(t *testing.T, entity string) *core.Model {
	t.Helper()
	m, ok := fixtures.Schema().Model(entity)
	require.True(t, ok, "unknown fixture model %s", entity)
	return m
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	posts := model(t, "posts")

	for _, format := range []string{FormatJSON, FormatYAML, FormatCBOR} {
		t.Run(format, func(t *testing.T) {
			repo := newTestRepo(t, Config{Format: format})

			require.NoError(t, repo.Save(ctx, posts, "1", core.Record{"title": "Hello"}))

			got, err := repo.Get(ctx, posts, "1")
			require.NoError(t, err)
			assert.Equal(t, "Hello", got["title"])
			assert.True(t, query.Equal(1, got["id"]) || got["id"] == "1", "key assigned, got %v", got["id"])

			_, err = os.Stat(filepath.Join(repo.Path, "posts", "1"+repo.serializer.Ext()))
			require.NoError(t, err)

			require.NoError(t, repo.Delete(ctx, posts, "1"))
			_, err = repo.Get(ctx, posts, "1")
			assert.ErrorIs(t, err, core.ErrNotFound)
			assert.ErrorIs(t, repo.Delete(ctx, posts, "1"), core.ErrNotFound)
		})
	}
}

func TestRepositoryList(t *testing.T) {
	ctx := context.Background()
	posts := model(t, "posts")
	repo := newTestRepo(t, Config{})

	for _, id := range []string{"10", "2", "1", "abc"} {
		require.NoError(t, repo.Save(ctx, posts, id, core.Record{"title": "post " + id}))
	}

	t.Run("Numeric Keys First", func(t *testing.T) {
		list, err := repo.List(ctx, posts)
		require.NoError(t, err)
		var titles []any
		for _, rec := range list {
			titles = append(titles, rec["title"])
		}
		assert.Equal(t, []any{"post 1", "post 2", "post 10", "post abc"}, titles)
	})

	t.Run("Ignores Foreign Files", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(repo.Path, "posts", "notes.txt"), []byte("x"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(repo.Path, "posts", TempFilePrefix+"1.json"), []byte("{"), 0644))
		list, err := repo.List(ctx, posts)
		require.NoError(t, err)
		assert.Len(t, list, 4)
	})

	t.Run("Missing Entity Is Empty", func(t *testing.T) {
		list, err := repo.List(ctx, model(t, "users"))
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("Picks Up External Edits", func(t *testing.T) {
		full := filepath.Join(repo.Path, "posts", "abc.json")
		require.NoError(t, os.WriteFile(full, []byte(`{"id":"abc","title":"edited"}`), 0644))
		// Force a newer mtime than the cached one.
		info, _ := os.Stat(full)
		later := info.ModTime().Add(2e9)
		require.NoError(t, os.Chtimes(full, later, later))

		got, err := repo.Get(ctx, posts, "abc")
		require.NoError(t, err)
		assert.Equal(t, "edited", got["title"])
	})
}

func TestRepositoryCompositeKeys(t *testing.T) {
	ctx := context.Background()
	pivot := model(t, "photo_tag")
	repo := newTestRepo(t, Config{})

	key, err := core.NormalizeID(pivot, []any{1, 2})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, pivot, key, core.Record{"primary": true}))

	got, err := repo.Get(ctx, pivot, key)
	require.NoError(t, err)
	assert.True(t, query.Equal(1, got["photo_id"]))
	assert.True(t, query.Equal(2, got["tag_id"]))

	list, err := repo.List(ctx, pivot)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepositoryReadOnly(t *testing.T) {
	ctx := context.Background()
	posts := model(t, "posts")
	repo := newTestRepo(t, Config{})
	require.NoError(t, repo.Save(ctx, posts, "1", core.Record{"title": "kept"}))

	repo.SetReadOnly(true)
	assert.ErrorIs(t, repo.Save(ctx, posts, "2", core.Record{}), core.ErrReadOnly)
	assert.ErrorIs(t, repo.Delete(ctx, posts, "1"), core.ErrReadOnly)
	_, err := repo.Begin(ctx)
	assert.ErrorIs(t, err, core.ErrReadOnly)

	got, err := repo.Get(ctx, posts, "1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got["title"])
}

func TestRepositoryMustExist(t *testing.T) {
	repo, err := NewRepository(Config{Path: filepath.Join(t.TempDir(), "missing"), MustExist: true})
	require.NoError(t, err)
	assert.Error(t, repo.Initialize(context.Background()))
}

func TestRepositoryCanceledContext(t *testing.T) {
	posts := model(t, "posts")
	repo := newTestRepo(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.Save(ctx, posts, "1", core.Record{}), context.Canceled)
	_, err := repo.Get(ctx, posts, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepositoryVersioned(t *testing.T) {
	if !IsGitInstalled() {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	posts := model(t, "posts")
	repo := newTestRepo(t, Config{Versioned: true})

	require.NoError(t, repo.Save(ctx, posts, "1", core.Record{"title": "a"}))
	require.NoError(t, repo.Delete(ctx, posts, "1"))

	history, err := repo.History(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(history), 2)
	assert.Equal(t, "delete posts/1", history[0])
	assert.Equal(t, "save posts/1", history[1])

	ignore, err := os.ReadFile(filepath.Join(repo.Path, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(ignore), ".strata")
}

func TestRepositoryState(t *testing.T) {
	repo := newTestRepo(t, Config{Format: FormatYAML})
	posts := model(t, "posts")
	require.NoError(t, repo.Save(context.Background(), posts, "1", core.Record{"title": "a"}))
	require.NoError(t, repo.Save(context.Background(), posts, "2", core.Record{"title": "b"}))

	state, ok := repo.State().(RepositoryState)
	require.True(t, ok)
	assert.Equal(t, FormatYAML, state.Format)
	assert.Equal(t, 2, state.Records["posts"])
	assert.False(t, state.WatcherActive)
	assert.Equal(t, "fs-repository", repo.ComponentType())
}
