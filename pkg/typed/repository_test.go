package typed_test

import (
	"context"
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
	"github.com/aretw0/strata/pkg/typed"
)

type User struct {
	ID    int    `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Age   int    `json:"age,omitempty"`
}

func newRuntime(t *testing.T) (*actions.Runtime, *store.Store) {
	t.Helper()
	schema := fixtures.Schema()
	backend := store.New(schema)
	repo := memory.NewRepository(backend, nil)
	require.NoError(t, fixtures.Seed(context.Background(), schema, repo))

	rt := actions.New(config.New(), schema, nil)
	rt.Drivers.Register("memory", local.New(repo, local.Config{Name: "memory", Schema: schema}))
	rt.Config.SetDefaultDriver("memory")
	return rt, backend
}

func TestTypedRepository(t *testing.T) {
	ctx := context.Background()
	rt, _ := newRuntime(t)
	users, err := typed.NewRepository[User](rt, "users", core.Options{})
	require.NoError(t, err)

	t.Run("Get", func(t *testing.T) {
		doc, err := users.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "3", doc.ID)
		assert.Equal(t, "user 3", doc.Data.Name)
		assert.Equal(t, fixtures.Ages[2], doc.Data.Age)
	})

	t.Run("Create And Save", func(t *testing.T) {
		doc, err := users.Create(ctx, User{ID: 11, Name: "Alice", Age: 30})
		require.NoError(t, err)
		assert.Equal(t, "11", doc.ID)

		doc.Data.Age = 31
		require.NoError(t, doc.Save(ctx))

		again, err := users.Get(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, 31, again.Data.Age)
		assert.Equal(t, "Alice", again.Data.Name)
	})

	t.Run("List", func(t *testing.T) {
		page, err := users.List(ctx, func(o *core.Options) {
			o.Filters = core.Filters{"age": core.Predicate{core.OpBetween: []any{30, 55}}}
		})
		require.NoError(t, err)
		assert.Len(t, page.Documents, fixtures.CountAgesBetween(30, 55)+1)
		for _, doc := range page.Documents {
			assert.GreaterOrEqual(t, doc.Data.Age, 30)
		}
	})

	t.Run("Failures Are Errors", func(t *testing.T) {
		_, err := users.Get(ctx, 999)
		assert.ErrorIs(t, err, core.ErrNotFound)

		resp, ok := core.AsResponse(err)
		require.True(t, ok)
		assert.Equal(t, core.ErrorNotFound, resp.StandardErrors[0].Name)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, users.Delete(ctx, 10))
		_, err := users.Get(ctx, 10)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Detached Document", func(t *testing.T) {
		doc := &typed.Document[User]{ID: "1"}
		assert.Error(t, doc.Save(ctx))
	})

	t.Run("Unknown Entity", func(t *testing.T) {
		_, err := typed.NewRepository[User](rt, "nope", core.Options{})
		assert.ErrorIs(t, err, core.ErrUnknownModel)
	})
}

func TestView(t *testing.T) {
	schema := fixtures.Schema()
	s := store.New(schema)
	usersModel, _ := schema.Model("users")
	view := typed.NewView[User](s, usersModel)

	events, stop := view.Watch(8)
	defer stop()

	_, err := s.Repo(usersModel).Insert(fixtures.Users()[:2]...)
	require.NoError(t, err)
	posts, _ := schema.Model("posts")
	_, _ = s.Repo(posts).Insert(fixtures.Posts()[0])

	u, ok, err := view.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user 2", u.Name)

	_, ok, _ = view.Get(5)
	assert.False(t, ok)

	all, err := view.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	for _, id := range []string{"1", "2"} {
		select {
		case e := <-events:
			assert.Equal(t, "users", e.Entity)
			assert.Equal(t, id, e.ID)
		case <-time.After(time.Second):
			t.Fatalf("missing event for user %s", id)
		}
	}
	select {
	case e := <-events:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
