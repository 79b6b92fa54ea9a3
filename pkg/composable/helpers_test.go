package composable_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/fixtures"
	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/adapters/local"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// env is a seeded backend behind a local driver, plus the client store the
// composables persist into.
type env struct {
	rt      *actions.Runtime
	driver  *local.Driver
	backend *store.Store
	store   *store.Store
	posts   *core.Model
}

func setup(t *testing.T, latency time.Duration) *env {
	t.Helper()
	schema := fixtures.Schema()
	backend := store.New(schema)
	repo := memory.NewRepository(backend, nil)
	require.NoError(t, fixtures.Seed(context.Background(), schema, repo))

	driver := local.New(repo, local.Config{Name: "local", Schema: schema, Latency: latency})
	rt := actions.New(config.New(), schema, nil)
	rt.Drivers.Register("local", driver)
	rt.Config.SetDefaultDriver("local")

	posts, err := rt.Model("posts")
	require.NoError(t, err)
	return &env{
		rt:      rt,
		driver:  driver,
		backend: backend,
		store:   store.New(schema),
		posts:   posts,
	}
}

// preload copies backend posts into the client store.
func (e *env) preload(t *testing.T, ids ...int) {
	t.Helper()
	for _, id := range ids {
		rec, ok := e.backend.Repo(e.posts).Find(id)
		require.True(t, ok)
		_, err := e.store.Repo(e.posts).Insert(rec)
		require.NoError(t, err)
	}
}

func title(s *store.Store, m *core.Model, id any) any {
	rec, ok := s.Repo(m).Find(id)
	if !ok {
		return nil
	}
	return rec["title"]
}

func firstError(resp *core.Response) string {
	if resp == nil || len(resp.StandardErrors) == 0 {
		return ""
	}
	return resp.StandardErrors[0].Name
}

func perPage(n int) core.Options {
	return core.Options{Pagination: &core.Pagination{RecordsPerPage: n}}
}
