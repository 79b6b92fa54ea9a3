package composable_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/adapters/local"
	"github.com/aretw0/strata/pkg/composable"
	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
)

func TestUpdater(t *testing.T) {
	ctx := context.Background()

	t.Run("Updates Through The Bound Form", func(t *testing.T) {
		e := setup(t, 0)
		e.preload(t, 1)
		u := composable.NewUpdater(e.rt, e.posts, e.store)

		form, err := u.MakeForm(1)
		require.NoError(t, err)
		assert.Equal(t, title(e.store, e.posts, 1), form["title"])

		require.NoError(t, u.Set(ctx, 1, "title", "edited"))
		resp, err := u.Update(ctx, 1, nil)
		require.NoError(t, err)
		require.True(t, resp.Success)

		rec, ok := u.Record(1)
		require.True(t, ok)
		assert.Equal(t, "edited", rec["title"])
		assert.Equal(t, "edited", title(e.store, e.posts, 1))
		assert.Equal(t, "edited", title(e.backend, e.posts, 1))
	})

	t.Run("Explicit Form Wins", func(t *testing.T) {
		e := setup(t, 0)
		u := composable.NewUpdater(e.rt, e.posts, e.store)
		require.NoError(t, u.Set(ctx, 2, "title", "bound"))
		resp, err := u.Update(ctx, 2, core.Form{"title": "explicit"})
		require.NoError(t, err)
		assert.Equal(t, "explicit", resp.Record["title"])

		form, _ := u.Form(2)
		assert.Equal(t, "explicit", form["title"], "the form follows the settled record")
	})

	t.Run("Optimistic Rollback Per Key", func(t *testing.T) {
		e := setup(t, 80*time.Millisecond)
		e.preload(t, 1, 2)
		original := map[int]any{1: title(e.store, e.posts, 1), 2: title(e.store, e.posts, 2)}
		e.driver.FailAlways(local.MockError("backend down", 503))
		u := composable.NewUpdater(e.rt, e.posts, e.store, composable.WithOptimistic())

		var wg sync.WaitGroup
		for _, id := range []int{1, 2} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = u.Update(ctx, id, core.Form{"title": "speculative"})
			}()
		}

		assert.Eventually(t, func() bool {
			return u.Updating(1) && u.Updating(2) &&
				title(e.store, e.posts, 1) == "speculative" &&
				title(e.store, e.posts, 2) == "speculative"
		}, time.Second, time.Millisecond, "both keys are in flight at once")
		wg.Wait()

		for id, want := range original {
			assert.Equal(t, want, title(e.store, e.posts, id))
			_, ok := u.Record(id)
			assert.False(t, ok)
		}
	})

	t.Run("Same Key Supersedes", func(t *testing.T) {
		e := setup(t, 50*time.Millisecond)
		u := composable.NewUpdater(e.rt, e.posts, e.store)

		first := make(chan *core.Response, 1)
		go func() {
			resp, _ := u.Update(ctx, 3, core.Form{"title": "first"})
			first <- resp
		}()
		require.Eventually(t, func() bool { return u.Updating(3) }, time.Second, time.Millisecond)

		resp, err := u.Update(ctx, 3, core.Form{"title": "second"})
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, core.ErrorAborted, firstError(<-first))

		rec, _ := u.Record(3)
		assert.Equal(t, "second", rec["title"])
		assert.Equal(t, "second", title(e.backend, e.posts, 3))
	})

	t.Run("Optimistic Rollback Across Superseded Updates", func(t *testing.T) {
		e := setup(t, 80*time.Millisecond)
		e.preload(t, 1)
		original := title(e.store, e.posts, 1)
		e.driver.FailAlways(local.MockError("backend down", 503))
		u := composable.NewUpdater(e.rt, e.posts, e.store, composable.WithOptimistic())

		first := make(chan *core.Response, 1)
		go func() {
			resp, _ := u.Update(ctx, 1, core.Form{"title": "first"})
			first <- resp
		}()
		require.Eventually(t, func() bool {
			return u.Updating(1) && title(e.store, e.posts, 1) == "first"
		}, time.Second, time.Millisecond)

		resp, err := u.Update(ctx, 1, core.Form{"title": "second"})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, core.ErrorAborted, firstError(<-first))

		assert.Equal(t, original, title(e.store, e.posts, 1))
		_, ok := u.Record(1)
		assert.False(t, ok)
	})

	t.Run("Superseded Failure Keeps Newer Speculation", func(t *testing.T) {
		e := setup(t, 80*time.Millisecond)
		e.preload(t, 1)
		u := composable.NewUpdater(e.rt, e.posts, e.store, composable.WithOptimistic())

		first := make(chan *core.Response, 1)
		go func() {
			resp, _ := u.Update(ctx, 1, core.Form{"title": "first"})
			first <- resp
		}()
		require.Eventually(t, func() bool { return u.Updating(1) }, time.Second, time.Millisecond)

		second := make(chan *core.Response, 1)
		go func() {
			resp, _ := u.Update(ctx, 1, core.Form{"title": "second"})
			second <- resp
		}()
		assert.Equal(t, core.ErrorAborted, firstError(<-first))
		assert.Equal(t, "second", title(e.store, e.posts, 1), "the aborted update leaves the pending one in place")

		resp := <-second
		require.True(t, resp.Success)
		assert.Equal(t, "second", title(e.store, e.posts, 1))
		assert.Equal(t, "second", title(e.backend, e.posts, 1))
	})

	t.Run("Auto Update Coalesces Edits", func(t *testing.T) {
		e := setup(t, 0)
		var updates atomic.Int32
		window := 30 * time.Millisecond
		u := composable.NewUpdater(e.rt, e.posts, e.store,
			composable.WithAutoUpdate(&window),
			composable.WithHooks(composable.Hooks{
				OnSuccess: func(*core.Response) { updates.Add(1) },
			}),
		)
		defer u.Close()

		for _, v := range []string{"a", "ab", "abc"} {
			require.NoError(t, u.Set(ctx, 4, "title", v))
		}
		u.Flush()

		assert.Equal(t, int32(1), updates.Load())
		assert.Equal(t, "abc", title(e.backend, e.posts, 4))
	})

	t.Run("Auto Update Window From Configuration", func(t *testing.T) {
		e := setup(t, 0)
		e.rt.Config.UpdateGlobal(func(s *config.Settings) {
			s.AutoUpdateDebounce = core.Ptr(10 * time.Millisecond)
		})
		u := composable.NewUpdater(e.rt, e.posts, e.store, composable.WithAutoUpdate(nil))
		defer u.Close()

		require.NoError(t, u.Set(ctx, 5, "title", "configured"))
		u.Flush()
		assert.Equal(t, "configured", title(e.backend, e.posts, 5))
	})

	t.Run("Close Drops Scheduled Updates", func(t *testing.T) {
		e := setup(t, 0)
		window := time.Hour
		u := composable.NewUpdater(e.rt, e.posts, e.store, composable.WithAutoUpdate(&window))
		before := title(e.backend, e.posts, 6)

		require.NoError(t, u.Set(ctx, 6, "title", "never sent"))
		u.Close()
		u.Flush()
		assert.Equal(t, before, title(e.backend, e.posts, 6))
	})
}
