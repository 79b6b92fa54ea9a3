package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lc "github.com/aretw0/lifecycle"

	"github.com/aretw0/strata/internal/fixtures"
	"github.com/aretw0/strata/pkg/adapters/lifecycle"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

func receive(t *testing.T, ch <-chan lc.Event) core.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "source closed")
		ce, ok := e.(core.Event)
		require.True(t, ok, "unexpected event type %T", e)
		return ce
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return core.Event{}
	}
}

func TestSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan core.Event, 1)
	src := lifecycle.NewSource(in)
	require.NoError(t, src.Start(ctx))

	in <- core.Event{Type: core.EventCreate, Entity: "posts", ID: "1"}
	e := receive(t, src.Events())
	assert.Equal(t, "posts", e.Entity)

	close(in)
	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not close")
	}
}

func TestStoreSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schema := fixtures.Schema()
	posts, _ := schema.Model("posts")
	s := store.New(schema)

	src := lifecycle.NewStoreSource(s, 8)
	require.NoError(t, src.Start(ctx))

	_, err := s.Repo(posts).Insert(core.Record{"id": 7, "title": "t"})
	require.NoError(t, err)

	e := receive(t, src.Events())
	assert.Equal(t, core.EventCreate, e.Type)
	assert.Equal(t, "7", e.ID)
	assert.Contains(t, e.String(), "posts")
}

func TestWatchSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schema := fixtures.Schema()
	posts, _ := schema.Model("posts")
	users, _ := schema.Model("users")
	repo := memory.NewRepository(store.New(schema), nil)

	src := lifecycle.NewWatchSource(repo, "users/**")
	require.NoError(t, src.Start(ctx))

	require.NoError(t, repo.Save(ctx, posts, "1", core.Record{}))
	require.NoError(t, repo.Save(ctx, users, "3", core.Record{"name": "x"}))

	e := receive(t, src.Events())
	assert.Equal(t, "users", e.Entity)
	assert.Equal(t, "3", e.ID)
}

func TestWatchSourceInvalidPattern(t *testing.T) {
	repo := memory.NewRepository(store.New(fixtures.Schema()), nil)
	src := lifecycle.NewWatchSource(repo, "[")
	assert.Error(t, src.Start(context.Background()))
}
