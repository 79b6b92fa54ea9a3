package query_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/fixtures"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/query"
)

func run(t *testing.T, entity string, opts core.DriverOptions) ([]core.Record, *core.Pagination, error) {
	t.Helper()
	schema := fixtures.Schema()
	m, ok := schema.Model(entity)
	require.True(t, ok)

	tr := &query.Translator{Schema: schema}
	q, err := tr.Translate(core.ActionIndex, m, opts)
	require.NoError(t, err)

	ev := query.NewEvaluator(schema, fixtures.Source)
	return ev.Run(context.Background(), q, fixtures.Records()[entity])
}

func TestFilters(t *testing.T) {
	t.Run("Equals On Title", func(t *testing.T) {
		recs, _, err := run(t, "posts", core.DriverOptions{
			Filters: core.Filters{"title": core.Predicate{core.OpEquals: "eum et est occaecati"}},
		})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 4, recs[0]["id"])
	})

	t.Run("Bare Value Means Equals", func(t *testing.T) {
		recs, _, err := run(t, "posts", core.DriverOptions{Filters: core.Filters{"user_id": 2}})
		require.NoError(t, err)
		assert.Len(t, recs, 5)
	})

	t.Run("Between Is Inclusive", func(t *testing.T) {
		recs, _, err := run(t, "users", core.DriverOptions{
			Filters: core.Filters{"age": core.Predicate{core.OpBetween: []int{30, 55}}},
		})
		require.NoError(t, err)
		assert.Len(t, recs, fixtures.CountAgesBetween(30, 55))
	})

	t.Run("Between With String Bounds", func(t *testing.T) {
		recs, _, err := run(t, "users", core.DriverOptions{
			Filters: core.Filters{"age": map[string]any{"between": []any{"30", "55"}}},
		})
		require.NoError(t, err)
		assert.Len(t, recs, fixtures.CountAgesBetween(30, 55))
	})

	t.Run("Contains Is Case Insensitive", func(t *testing.T) {
		recs, _, err := run(t, "posts", core.DriverOptions{
			Filters: core.Filters{"title": core.Predicate{core.OpContains: "OCCAECATI"}},
		})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("Or Combines Items", func(t *testing.T) {
		recs, _, err := run(t, "users", core.DriverOptions{
			Filters: core.Filters{"or": []core.Filters{
				{"age": core.Predicate{core.OpLessThan: 30}},
				{"age": core.Predicate{core.OpGreaterThan: 60}},
			}},
		})
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})

	t.Run("Or Is Anded With Siblings", func(t *testing.T) {
		recs, _, err := run(t, "posts", core.DriverOptions{
			Filters: core.Filters{
				"user_id": 1,
				"or": []any{
					map[string]any{"id": 1},
					map[string]any{"id": 2},
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 1, recs[0]["id"])
	})

	t.Run("Nested Relation Filter", func(t *testing.T) {
		recs, _, err := run(t, "posts", core.DriverOptions{
			Filters: core.Filters{"comments": core.Filters{"body": core.Predicate{core.OpContains: "comment 5"}}},
		})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 3, recs[0]["id"])
	})

	t.Run("In And NotIn", func(t *testing.T) {
		recs, _, err := run(t, "users", core.DriverOptions{
			Filters: core.Filters{"id": core.Predicate{core.OpIn: []int{1, 2, 3}, core.OpNotIn: []int{2}}},
		})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("Unknown Operator Fails", func(t *testing.T) {
		schema := fixtures.Schema()
		m, _ := schema.Model("posts")
		tr := &query.Translator{Schema: schema}
		_, err := tr.Translate(core.ActionIndex, m, core.DriverOptions{
			Filters: core.Filters{"title": map[string]any{"like": "x"}},
		})
		assert.ErrorIs(t, err, query.ErrUnknownOperator)
	})
}

func TestCompare(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		a, b any
		want int
	}{
		{"Numbers", 2, 10, -1},
		{"Number And String", 40, "30", 1},
		{"Time And String", day, "2024-05-01", 0},
		{"Date Strings", "2024-05-02", "2024-05-01T10:00:00Z", 1},
		{"Text", "apple", "banana", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := query.Compare(tc.a, tc.b)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOrderAndIncludes(t *testing.T) {
	t.Run("Order Descending", func(t *testing.T) {
		recs, _, err := run(t, "users", core.DriverOptions{OrderBy: core.OrderBy{core.Desc("age")}})
		require.NoError(t, err)
		assert.Equal(t, 61, recs[0]["age"])
		assert.Equal(t, 25, recs[len(recs)-1]["age"])
	})

	t.Run("Nested Include With Order And Filters", func(t *testing.T) {
		recs, _, err := run(t, "posts", core.DriverOptions{
			Filters: core.Filters{"id": 1},
			With: core.With{
				"user": true,
				"comments": map[string]any{
					"_orderBy": []any{map[string]any{"field": "id", "direction": "descending"}},
					"post":     true,
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, recs, 1)

		user, ok := recs[0]["user"].(core.Record)
		require.True(t, ok)
		assert.Equal(t, 1, user["id"])

		comments, ok := recs[0]["comments"].([]core.Record)
		require.True(t, ok)
		require.Len(t, comments, 2)
		assert.Equal(t, 2, comments[0]["id"])
		assert.NotNil(t, comments[0]["post"])
	})

	t.Run("Include Filters", func(t *testing.T) {
		recs, _, err := run(t, "posts", core.DriverOptions{
			Filters: core.Filters{"id": 1},
			With:    core.With{"comments": map[string]any{"id": 1}},
		})
		require.NoError(t, err)
		assert.Len(t, recs[0]["comments"], 1)
	})

	t.Run("BelongsToMany Carries Pivot", func(t *testing.T) {
		recs, _, err := run(t, "photos", core.DriverOptions{
			Filters: core.Filters{"id": 1},
			With:    core.With{"tags": true},
		})
		require.NoError(t, err)
		tags := recs[0]["tags"].([]core.Record)
		require.Len(t, tags, 2)
		pivot := tags[0]["pivot"].(core.Record)
		assert.Equal(t, 1, pivot["photo_id"])
	})
}

func TestPagination(t *testing.T) {
	t.Run("Pages Count Is Ceiling", func(t *testing.T) {
		recs, p, err := run(t, "posts", core.DriverOptions{Pagination: core.Page(4, 3)})
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, 10, p.RecordsCount)
		assert.Equal(t, 4, p.PagesCount)
		assert.Len(t, recs, 1)
	})

	t.Run("Beyond Last Page", func(t *testing.T) {
		_, _, err := run(t, "posts", core.DriverOptions{Pagination: core.Page(5, 3)})
		assert.ErrorIs(t, err, core.ErrBeyondLastPage)
		assert.Contains(t, err.Error(), "last")
	})

	t.Run("Before First Page", func(t *testing.T) {
		_, _, err := run(t, "posts", core.DriverOptions{Pagination: core.Page(0, 3)})
		assert.ErrorIs(t, err, core.ErrBeforeFirstPage)
		assert.Contains(t, err.Error(), "first")
	})

	t.Run("Bound Uses Filtered Count", func(t *testing.T) {
		_, p, err := run(t, "posts", core.DriverOptions{
			Filters:    core.Filters{"user_id": 1},
			Pagination: core.Page(3, 2),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, p.PagesCount)

		_, _, err = run(t, "posts", core.DriverOptions{
			Filters:    core.Filters{"user_id": 1},
			Pagination: core.Page(4, 2),
		})
		assert.ErrorIs(t, err, core.ErrBeyondLastPage)
	})

	t.Run("Empty Result Accepts Any Page", func(t *testing.T) {
		recs, p, err := run(t, "posts", core.DriverOptions{
			Filters:    core.Filters{"user_id": 99},
			Pagination: core.Page(5, 3),
		})
		require.NoError(t, err)
		assert.Empty(t, recs)
		assert.Equal(t, 0, p.PagesCount)
		assert.Equal(t, 5, p.CurrentPage())

		_, _, err = run(t, "posts", core.DriverOptions{
			Filters:    core.Filters{"user_id": 99},
			Pagination: core.Page(0, 3),
		})
		assert.ErrorIs(t, err, core.ErrBeforeFirstPage, "page zero is rejected even when empty")
	})
}

func TestUnsupportedFeatures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	schema := fixtures.Schema()
	posts, _ := schema.Model("posts")

	tr := &query.Translator{
		Schema:   schema,
		Features: core.AllFeatures().Without(core.FeatureIndexOrderNested),
		Warner:   query.NewWarner("remote", logger),
	}
	opts := core.DriverOptions{
		With: core.With{"comments": map[string]any{"_orderBy": core.OrderBy{core.Desc("id")}}},
	}

	for i := 0; i < 3; i++ {
		q, err := tr.Translate(core.ActionIndex, posts, opts)
		require.NoError(t, err)
		require.Len(t, q.Includes, 1)
		assert.Empty(t, q.Includes[0].OrderBy)
	}

	assert.Equal(t, []core.Feature{core.FeatureIndexOrderNested}, tr.Warner.Seen())
	assert.Equal(t, 1, strings.Count(buf.String(), "index.order.nested"))
}

func TestSQLDialect(t *testing.T) {
	schema := fixtures.Schema()
	posts, _ := schema.Model("posts")
	tr := &query.Translator{Schema: schema, Dialect: query.SQL}

	q, err := tr.Translate(core.ActionIndex, posts, core.DriverOptions{
		Filters: core.Filters{
			"title":    core.Predicate{core.OpContains: "qui"},
			"user_id":  core.Predicate{core.OpBetween: []int{1, 2}},
			"comments": core.Filters{"email": core.Predicate{core.OpEndsWith: "example.com"}},
		},
		Pagination: core.Page(2, 5),
	})
	require.NoError(t, err)

	sql, args := query.Where(q.Filters)
	assert.Equal(t, "title LIKE ? AND (user_id >= ? AND user_id <= ?) AND EXISTS (comments: comments.email LIKE ?)", sql)
	assert.Equal(t, []any{"%qui%", 1, 2, "%example.com"}, args)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 5, q.Offset)
}
