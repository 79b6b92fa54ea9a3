package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/core"
)

func TestTransaction(t *testing.T) {
	ctx := context.Background()
	posts := model(t, "posts")

	t.Run("Isolation Until Commit", func(t *testing.T) {
		repo := newTestRepo(t, Config{})
		require.NoError(t, repo.Save(ctx, posts, "1", core.Record{"title": "old"}))

		tx, err := repo.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Save(ctx, posts, "1", core.Record{"title": "new"}))
		require.NoError(t, tx.Save(ctx, posts, "2", core.Record{"title": "added"}))

		staged, err := tx.Get(ctx, posts, "1")
		require.NoError(t, err)
		assert.Equal(t, "new", staged["title"])

		onDisk, err := repo.Get(ctx, posts, "1")
		require.NoError(t, err)
		assert.Equal(t, "old", onDisk["title"])
		_, err = repo.Get(ctx, posts, "2")
		assert.ErrorIs(t, err, core.ErrNotFound)

		require.NoError(t, tx.Commit(ctx))

		got, err := repo.Get(ctx, posts, "2")
		require.NoError(t, err)
		assert.Equal(t, "added", got["title"])
	})

	t.Run("Staged Delete", func(t *testing.T) {
		repo := newTestRepo(t, Config{})
		require.NoError(t, repo.Save(ctx, posts, "1", core.Record{"title": "doomed"}))

		tx, err := repo.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Delete(ctx, posts, "1"))
		require.NoError(t, tx.Delete(ctx, posts, "404"))

		_, err = tx.Get(ctx, posts, "1")
		assert.ErrorIs(t, err, core.ErrNotFound)

		require.NoError(t, tx.Commit(ctx))
		_, err = repo.Get(ctx, posts, "1")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Rollback Discards", func(t *testing.T) {
		repo := newTestRepo(t, Config{})
		tx, err := repo.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Save(ctx, posts, "1", core.Record{"title": "never"}))
		require.NoError(t, tx.Rollback(ctx))

		_, err = repo.Get(ctx, posts, "1")
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.Error(t, tx.Save(ctx, posts, "1", core.Record{}))
		assert.Error(t, tx.Commit(ctx))
	})

	t.Run("Single Commit When Versioned", func(t *testing.T) {
		if !IsGitInstalled() {
			t.Skip("git not installed")
		}
		repo := newTestRepo(t, Config{Versioned: true})
		tx, err := repo.Begin(ctx)
		require.NoError(t, err)
		for _, id := range []string{"1", "2", "3"} {
			require.NoError(t, tx.Save(ctx, posts, id, core.Record{"title": id}))
		}
		require.NoError(t, tx.Commit(ctx))

		history, err := repo.History(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"batch transaction update"}, history)
	})
}
