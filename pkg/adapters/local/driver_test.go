package local_test

import (
	"context"
	"net/http"
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

func setup(t *testing.T, cfg local.Config) (*actions.Runtime, *local.Driver) {
	t.Helper()
	schema := fixtures.Schema()
	cfg.Schema = schema
	repo := memory.NewRepository(store.New(schema), nil)
	require.NoError(t, fixtures.Seed(context.Background(), schema, repo))

	driver := local.New(repo, cfg)
	rt := actions.New(config.New(), schema, nil)
	rt.Drivers.Register("local", driver)
	rt.Config.SetDefaultDriver("local")
	return rt, driver
}

func model(t *testing.T, rt *actions.Runtime, entity string) *core.Model {
	t.Helper()
	m, err := rt.Model(entity)
	require.NoError(t, err)
	return m
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	rt, _ := setup(t, local.Config{})
	posts := model(t, rt, "posts")

	t.Run("Generated Key Round Trip", func(t *testing.T) {
		created, err := rt.Create(ctx, posts, core.Form{"title": "fresh", "body": "text", "user_id": 1}, core.Options{})
		require.NoError(t, err)
		require.True(t, created.Success)
		id := created.Record["id"]
		require.NotEmpty(t, id)

		found, err := rt.Find(ctx, posts, id, core.Options{})
		require.NoError(t, err)
		require.True(t, found.Success)
		assert.Equal(t, created.Record, found.Record)
	})

	t.Run("Duplicate Key Conflicts", func(t *testing.T) {
		resp, err := rt.Create(ctx, posts, core.Form{"id": 1, "title": "again"}, core.Options{})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		require.Len(t, resp.StandardErrors, 1)
		assert.Equal(t, http.StatusConflict, resp.StandardErrors[0].HTTPStatus)
	})

	t.Run("Missing Record", func(t *testing.T) {
		resp, err := rt.Find(ctx, posts, 999, core.Options{})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		require.Len(t, resp.StandardErrors, 1)
		assert.Equal(t, core.ErrorNotFound, resp.StandardErrors[0].Name)
		assert.Equal(t, http.StatusNotFound, resp.StandardErrors[0].HTTPStatus)
	})

	t.Run("Filters Constrain Find", func(t *testing.T) {
		resp, err := rt.Find(ctx, posts, 4, core.Options{Filters: core.Filters{"title": "nope"}})
		require.NoError(t, err)
		assert.False(t, resp.Success)

		resp, err = rt.Find(ctx, posts, 4, core.Options{With: core.With{"user": true}})
		require.NoError(t, err)
		require.True(t, resp.Success)
		user, ok := resp.Record["user"].(core.Record)
		require.True(t, ok)
		assert.Equal(t, 2, user["id"])
	})
}

func TestCompositeKeys(t *testing.T) {
	ctx := context.Background()
	rt, _ := setup(t, local.Config{})
	pivot := model(t, rt, "photo_tag")

	byArray, err := rt.Find(ctx, pivot, []any{1, 2}, core.Options{})
	require.NoError(t, err)
	byString, err := rt.Find(ctx, pivot, "[1,2]", core.Options{})
	require.NoError(t, err)

	require.True(t, byArray.Success)
	assert.Equal(t, byArray.Record, byString.Record)
	assert.Equal(t, false, byArray.Record["primary"])

	t.Run("Single Part Is A Programmer Error", func(t *testing.T) {
		_, err := rt.Find(ctx, pivot, 1, core.Options{})
		assert.ErrorIs(t, err, core.ErrMissingPrimaryKey)
	})
}

func TestUpdateAndDestroy(t *testing.T) {
	ctx := context.Background()
	rt, driver := setup(t, local.Config{})
	posts := model(t, rt, "posts")

	resp, err := rt.Update(ctx, posts, "2", core.Form{"title": "renamed", "id": 77}, core.Options{})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, "renamed", resp.Record["title"])
	assert.Equal(t, 2, resp.Record["id"])

	resp, err = rt.Destroy(ctx, posts, 2, core.Options{})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, "renamed", resp.Record["title"])

	_, err = driver.Repository().Get(ctx, posts, "2")
	assert.ErrorIs(t, err, core.ErrNotFound)

	resp, err = rt.Destroy(ctx, posts, 2, core.Options{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestBulkUpdate(t *testing.T) {
	ctx := context.Background()
	rt, driver := setup(t, local.Config{})
	posts := model(t, rt, "posts")

	resp, err := rt.BulkUpdate(ctx, posts, map[string]core.Form{
		"1": {"title": "one"},
		"3": {"title": "three"},
	}, core.Options{})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "one", resp.Records[0]["title"])
	assert.Equal(t, "three", resp.Records[1]["title"])

	t.Run("Missing Key Applies Nothing", func(t *testing.T) {
		resp, err := rt.BulkUpdate(ctx, posts, map[string]core.Form{
			"1":   {"title": "lost"},
			"404": {"title": "missing"},
		}, core.Options{})
		require.NoError(t, err)
		assert.False(t, resp.Success)

		rec, err := driver.Repository().Get(ctx, posts, "1")
		require.NoError(t, err)
		assert.Equal(t, "one", rec["title"])
	})
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	photos := func(rt *actions.Runtime) *core.Model { return model(t, rt, "photos") }

	t.Run("Attach Update Detach", func(t *testing.T) {
		rt, _ := setup(t, local.Config{})
		resp, err := rt.Sync(ctx, photos(rt), 1, "tags", map[string]core.Form{
			"2": {"primary": true},
			"3": {"primary": false},
		}, core.Options{})
		require.NoError(t, err)
		require.True(t, resp.Success)
		assert.Equal(t, []string{"3"}, resp.Sync.Attached)
		assert.Equal(t, []string{"2"}, resp.Sync.Updated)
		assert.Equal(t, []string{"1"}, resp.Sync.Detached)

		found, err := rt.Find(ctx, photos(rt), 1, core.Options{With: core.With{"tags": true}})
		require.NoError(t, err)
		tags, ok := found.Record["tags"].([]core.Record)
		require.True(t, ok)
		assert.Len(t, tags, 2)
	})

	t.Run("Without Detaching", func(t *testing.T) {
		rt, _ := setup(t, local.Config{})
		resp, err := rt.Sync(ctx, photos(rt), 1, "tags", map[string]core.Form{
			"3": nil,
		}, core.Options{WithoutDetaching: true})
		require.NoError(t, err)
		require.True(t, resp.Success)
		assert.Equal(t, []string{"3"}, resp.Sync.Attached)
		assert.Empty(t, resp.Sync.Detached)
	})

	t.Run("Unknown Related Record", func(t *testing.T) {
		rt, _ := setup(t, local.Config{})
		resp, err := rt.Sync(ctx, photos(rt), 1, "tags", map[string]core.Form{"99": nil}, core.Options{})
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})

	t.Run("Not A Pivot Relation", func(t *testing.T) {
		rt, _ := setup(t, local.Config{})
		_, err := rt.Sync(ctx, model(t, rt, "posts"), 1, "comments", nil, core.Options{})
		assert.ErrorIs(t, err, core.ErrUnknownRelation)
	})
}

func TestMockedFailures(t *testing.T) {
	ctx := context.Background()
	rt, driver := setup(t, local.Config{})
	posts := model(t, rt, "posts")

	driver.FailNext(local.MockError("server down", http.StatusServiceUnavailable))
	resp, err := rt.Find(ctx, posts, 1, core.Options{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StandardErrors[0].HTTPStatus)

	resp, err = rt.Find(ctx, posts, 1, core.Options{})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	driver.FailAlways(core.Invalid(core.ValidationErrors{"title": {"required"}}))
	resp, err = rt.Create(ctx, posts, core.Form{}, core.Options{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.StandardErrors)
	assert.Equal(t, []string{"required"}, resp.ValidationErrors["title"])

	state, ok := driver.State().(local.State)
	require.True(t, ok)
	assert.True(t, state.FailAlways)

	driver.ClearFailures()
	resp, err = rt.Find(ctx, posts, 1, core.Options{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestLatencyAbort(t *testing.T) {
	rt, _ := setup(t, local.Config{Latency: time.Second})
	posts := model(t, rt, "posts")

	ctrl := core.NewAbortController()
	time.AfterFunc(20*time.Millisecond, func() { ctrl.Abort(nil) })

	start := time.Now()
	resp, err := rt.Index(context.Background(), posts, core.Options{Signal: ctrl.Signal()})
	require.NoError(t, err)
	assert.True(t, resp.Aborted())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUnsupportedFeatures(t *testing.T) {
	ctx := context.Background()
	rt, driver := setup(t, local.Config{
		Features: core.AllFeatures().Without(core.FeatureIndexWith),
	})
	posts := model(t, rt, "posts")

	resp, err := rt.Index(ctx, posts, core.Options{With: core.With{"user": true}})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.NotContains(t, resp.Records[0], "user")

	state := driver.State().(local.State)
	assert.Equal(t, []string{string(core.FeatureIndexWith)}, state.Warnings)
}
