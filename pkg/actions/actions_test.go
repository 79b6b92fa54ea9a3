package actions_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/fixtures"
	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/adapters/local"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// slowDriver ignores cancellation and answers after delay.
type slowDriver struct {
	core.Driver
	delay time.Duration
	calls atomic.Int32
}

func (d *slowDriver) Find(ctx context.Context, m *core.Model, id string, opts core.DriverOptions) (core.Record, error) {
	d.calls.Add(1)
	time.Sleep(d.delay)
	return core.Record{"id": id}, nil
}

func (d *slowDriver) Destroy(ctx context.Context, m *core.Model, id string, opts core.DriverOptions) (core.Record, error) {
	panic("boom")
}

func (d *slowDriver) Features() core.Features {
	return core.AllFeatures()
}

func newRuntime(t *testing.T) *actions.Runtime {
	t.Helper()
	schema := fixtures.Schema()
	repo := memory.NewRepository(store.New(schema), nil)
	require.NoError(t, fixtures.Seed(context.Background(), schema, repo))

	rt := actions.New(config.New(), schema, nil)
	rt.Drivers.Register("local", local.New(repo, local.Config{Schema: schema}))
	rt.Config.SetDefaultDriver("local")
	return rt
}

func posts(t *testing.T, rt *actions.Runtime) *core.Model {
	t.Helper()
	m, err := rt.Model("posts")
	require.NoError(t, err)
	return m
}

func TestDriverResolution(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	t.Run("Unknown Driver Is A Programmer Error", func(t *testing.T) {
		resp, err := rt.Find(ctx, posts(t, rt), 1, core.Options{Driver: "nope"})
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, core.ErrUnknownDriver)
	})

	t.Run("Default Driver Getter Is Read Per Call", func(t *testing.T) {
		current := "missing"
		rt.Config.SetDefaultDriverFunc(func() string { return current })
		_, err := rt.Find(ctx, posts(t, rt), 1, core.Options{})
		assert.ErrorIs(t, err, core.ErrUnknownDriver)

		current = "local"
		resp, err := rt.Find(ctx, posts(t, rt), 1, core.Options{})
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "local", resp.Driver)
	})

	t.Run("Unknown Scope Is A Programmer Error", func(t *testing.T) {
		_, err := rt.Index(ctx, posts(t, rt), core.Options{Scopes: []core.ScopeRef{{Name: "nope"}}})
		assert.ErrorIs(t, err, core.ErrUnknownScope)
	})
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	slow := &slowDriver{delay: 200 * time.Millisecond}
	rt.Drivers.Register("slow", slow)

	t.Run("Aborted Before Dispatch", func(t *testing.T) {
		resp, err := rt.Find(ctx, posts(t, rt), 1, core.Options{
			Driver: "slow",
			Signal: core.AbortedSignal(nil),
		})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.True(t, resp.Aborted())
		assert.Equal(t, int32(0), slow.calls.Load())
	})

	t.Run("Aborted Mid Flight", func(t *testing.T) {
		ctrl := core.NewAbortController()
		time.AfterFunc(10*time.Millisecond, func() { ctrl.Abort(errors.New("navigated away")) })

		start := time.Now()
		resp, err := rt.Find(ctx, posts(t, rt), 1, core.Options{Driver: "slow", Signal: ctrl.Signal()})
		require.NoError(t, err)
		assert.True(t, resp.Aborted())
		assert.Nil(t, resp.Record)
		assert.Less(t, time.Since(start), 150*time.Millisecond)
		assert.Contains(t, resp.StandardErrors[0].Message, "navigated away")
	})

	t.Run("Context Cancellation Aborts", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		resp, err := rt.Find(cctx, posts(t, rt), 1, core.Options{Driver: "slow"})
		require.NoError(t, err)
		assert.True(t, resp.Aborted())
	})

	t.Run("Driver Panic Becomes A Failure", func(t *testing.T) {
		resp, err := rt.Destroy(ctx, posts(t, rt), 1, core.Options{Driver: "slow"})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.StandardErrors)
	})
}

func TestThrow(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.Config.UpdateGlobal(func(s *config.Settings) { s.Throw = core.Ptr(true) })

	resp, err := rt.Find(ctx, posts(t, rt), 404, core.Options{})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)

	carried, ok := core.AsResponse(err)
	require.True(t, ok)
	assert.Equal(t, core.ActionFind, carried.Action)

	t.Run("Call Site Wins", func(t *testing.T) {
		resp, err := rt.Find(ctx, posts(t, rt), 404, core.Options{Throw: core.Ptr(false)})
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})

	t.Run("Successes Never Throw", func(t *testing.T) {
		resp, err := rt.Find(ctx, posts(t, rt), 1, core.Options{})
		require.NoError(t, err)
		assert.True(t, resp.Success)
	})
}

func TestNotifyOnError(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	var got []config.Notification
	rt.Config.OnError(core.ActionFind, func(n config.Notification) { got = append(got, n) })
	rt.Config.OnError(core.ActionDestroy, func(n config.Notification) { got = append(got, n) })
	rt.Config.UpdateGlobal(func(s *config.Settings) {
		s.NotifyOnError = map[core.Action]bool{core.ActionFind: true}
	})

	_, err := rt.Find(ctx, posts(t, rt), 404, core.Options{})
	require.NoError(t, err)
	_, err = rt.Destroy(ctx, posts(t, rt), 404, core.Options{})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, core.ActionFind, got[0].Action)
	assert.Equal(t, core.ErrorNotFound, got[0].StandardErrors[0].Name)

	t.Run("Call Site Enables", func(t *testing.T) {
		_, err := rt.Destroy(ctx, posts(t, rt), 404, core.Options{NotifyOnError: core.Ptr(true)})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Notifier Panics Are Contained", func(t *testing.T) {
		rt.Config.OnError(core.ActionFind, func(config.Notification) { panic("notifier") })
		resp, err := rt.Find(ctx, posts(t, rt), 404, core.Options{})
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})
}

func TestIndexPagination(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.Config.UpdateGlobal(func(s *config.Settings) { s.RecordsPerPage = core.Ptr(3) })

	resp, err := rt.Index(ctx, posts(t, rt), core.Options{Pagination: core.Page(2, 0)})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Len(t, resp.Records, 3)
	assert.Equal(t, 4, resp.Pagination.PagesCount)
	assert.Equal(t, 10, resp.Pagination.RecordsCount)
	assert.Equal(t, 2, resp.Pagination.CurrentPage())

	resp, err = rt.Index(ctx, posts(t, rt), core.Options{Pagination: core.Page(5, 0)})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, core.ErrorLastPage, resp.StandardErrors[0].Name)
	assert.Contains(t, resp.StandardErrors[0].Message, "last")

	resp, err = rt.Index(ctx, posts(t, rt), core.Options{Pagination: core.Page(0, 0)})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, core.ErrorFirstPage, resp.StandardErrors[0].Name)
	assert.Contains(t, resp.StandardErrors[0].Message, "first")

	t.Run("Empty Result Is Not Nil", func(t *testing.T) {
		resp, err := rt.Index(ctx, posts(t, rt), core.Options{Filters: core.Filters{"title": "nothing like this"}})
		require.NoError(t, err)
		require.True(t, resp.Success)
		assert.NotNil(t, resp.Records)
		assert.Empty(t, resp.Records)
	})
}

func TestScopesReachDriver(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.Config.AddEntityScope("posts", "firstUser", core.StaticScope{Filters: core.Filters{"user_id": 1}})

	resp, err := rt.Index(ctx, posts(t, rt), core.Options{})
	require.NoError(t, err)
	assert.Len(t, resp.Records, 5)

	resp, err = rt.Index(ctx, posts(t, rt), core.Options{WithoutEntityGlobalScopes: []string{"firstUser"}})
	require.NoError(t, err)
	assert.Len(t, resp.Records, 10)
}

func TestState(t *testing.T) {
	rt := newRuntime(t)
	state, ok := rt.State().(actions.RuntimeState)
	require.True(t, ok)
	assert.Equal(t, []string{"local"}, state.Drivers)
	assert.Equal(t, "local", state.DefaultDriver)
	assert.Contains(t, state.Entities, "posts")
	assert.Equal(t, "runtime", rt.ComponentType())
}
