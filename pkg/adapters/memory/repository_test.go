package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/fixtures"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	schema := fixtures.Schema()
	posts, _ := schema.Model("posts")

	t.Run("CRUD", func(t *testing.T) {
		repo := memory.NewRepository(store.New(schema), nil)
		require.NoError(t, repo.Save(ctx, posts, "1", core.Record{"title": "first"}))

		rec, err := repo.Get(ctx, posts, "1")
		require.NoError(t, err)
		assert.Equal(t, "first", rec["title"])
		assert.NotNil(t, rec["id"], "the key is written into the record")

		require.NoError(t, repo.Save(ctx, posts, "1", core.Record{"body": "replaced"}))
		rec, _ = repo.Get(ctx, posts, "1")
		assert.NotContains(t, rec, "title")

		require.NoError(t, repo.Delete(ctx, posts, "1"))
		_, err = repo.Get(ctx, posts, "1")
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, posts, "1"), core.ErrNotFound)
	})

	t.Run("Canceled Context", func(t *testing.T) {
		repo := memory.NewRepository(nil, nil)
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, repo.Save(canceled, posts, "1", nil), context.Canceled)
		_, err := repo.List(canceled, posts)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Transaction", func(t *testing.T) {
		repo := memory.NewRepository(store.New(schema), nil)
		require.NoError(t, fixtures.Seed(ctx, schema, repo))

		tx, err := repo.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Save(ctx, posts, "1", core.Record{"id": 1, "title": "staged"}))
		require.NoError(t, tx.Delete(ctx, posts, "2"))

		staged, err := tx.Get(ctx, posts, "1")
		require.NoError(t, err)
		assert.Equal(t, "staged", staged["title"])
		_, err = tx.Get(ctx, posts, "2")
		assert.ErrorIs(t, err, core.ErrNotFound)

		stored, _ := repo.Get(ctx, posts, "1")
		assert.NotEqual(t, "staged", stored["title"], "nothing leaks before commit")

		require.NoError(t, tx.Commit(ctx))
		stored, _ = repo.Get(ctx, posts, "1")
		assert.Equal(t, "staged", stored["title"])
		_, err = repo.Get(ctx, posts, "2")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Rollback", func(t *testing.T) {
		repo := memory.NewRepository(store.New(schema), nil)
		tx, _ := repo.Begin(ctx)
		require.NoError(t, tx.Save(ctx, posts, "9", core.Record{"id": 9}))
		require.NoError(t, tx.Rollback(ctx))
		assert.Error(t, tx.Save(ctx, posts, "9", core.Record{"id": 9}))

		records, err := repo.List(ctx, posts)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestWatch(t *testing.T) {
	schema := fixtures.Schema()
	posts, _ := schema.Model("posts")
	users, _ := schema.Model("users")
	repo := memory.NewRepository(store.New(schema), nil)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := repo.Watch(ctx, "posts/*")
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, users, "1", core.Record{"name": "ignored"}))
	require.NoError(t, repo.Save(ctx, posts, "7", core.Record{"title": "seen"}))

	select {
	case e := <-events:
		assert.Equal(t, "posts", e.Entity)
		assert.Equal(t, "7", e.ID)
		assert.Equal(t, core.EventCreate, e.Type)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	for range events {
	}

	_, err = repo.Watch(context.Background(), "posts/[")
	assert.Error(t, err)
}
