package composable_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/adapters/local"
	"github.com/aretw0/strata/pkg/composable"
	"github.com/aretw0/strata/pkg/core"
)

func TestDestroyer(t *testing.T) {
	ctx := context.Background()

	t.Run("Destroys", func(t *testing.T) {
		e := setup(t, 0)
		e.preload(t, 1)
		d := composable.NewDestroyer(e.rt, e.posts, e.store)

		resp, err := d.Destroy(ctx, 1)
		require.NoError(t, err)
		require.True(t, resp.Success)
		assert.False(t, e.store.Repo(e.posts).Has("1"))
		assert.False(t, e.backend.Repo(e.posts).Has("1"))

		rec, ok := d.Destroyed(1)
		require.True(t, ok)
		assert.Equal(t, 1, rec["id"])
	})

	t.Run("Optimistic Rollback", func(t *testing.T) {
		e := setup(t, 80*time.Millisecond)
		e.preload(t, 2)
		e.driver.FailAlways(local.MockError("backend down", 503))
		d := composable.NewDestroyer(e.rt, e.posts, e.store, composable.WithOptimistic())

		done := make(chan *core.Response, 1)
		go func() {
			resp, _ := d.Destroy(ctx, 2)
			done <- resp
		}()
		assert.Eventually(t, func() bool {
			return d.Destroying(2) && !e.store.Repo(e.posts).Has("2")
		}, time.Second, time.Millisecond)

		resp := <-done
		assert.False(t, resp.Success)
		assert.Equal(t, title(e.backend, e.posts, 2), title(e.store, e.posts, 2))
		_, ok := d.Destroyed(2)
		assert.False(t, ok)
	})

	t.Run("Not Found", func(t *testing.T) {
		e := setup(t, 0)
		d := composable.NewDestroyer(e.rt, e.posts, e.store)
		resp, err := d.Destroy(ctx, 999)
		require.NoError(t, err)
		assert.Equal(t, core.ErrorNotFound, firstError(resp))
		assert.Equal(t, core.ErrorNotFound, firstError(d.Response()))
	})

	t.Run("Composite Keys", func(t *testing.T) {
		e := setup(t, 0)
		pivot, err := e.rt.Model("photo_tag")
		require.NoError(t, err)
		d := composable.NewDestroyer(e.rt, pivot, e.store)

		resp, err := d.Destroy(ctx, []any{1, 2})
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.False(t, e.backend.Repo(pivot).Has(`[1,2]`))
	})
}
