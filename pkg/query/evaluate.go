package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/strata/pkg/core"
)

// Source lists every record of an entity.
type Source func(ctx context.Context, entity string) ([]core.Record, error)

// Evaluator runs queries against in-memory records. Entity listings are
// memoised, so create one per call.
type Evaluator struct {
	schema *core.Schema
	source Source
	cache  map[string][]core.Record
}

// NewEvaluator creates an evaluator resolving relations through source.
func NewEvaluator(schema *core.Schema, source Source) *Evaluator {
	return &Evaluator{schema: schema, source: source, cache: make(map[string][]core.Record)}
}

// Run filters, sorts, paginates and hydrates records, in that order.
// The page bound is validated against the filtered count.
func (e *Evaluator) Run(ctx context.Context, q *Query, records []core.Record) ([]core.Record, *core.Pagination, error) {
	matched := make([]core.Record, 0, len(records))
	for _, rec := range records {
		ok, err := e.Match(ctx, rec, q.Filters)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	Sort(matched, q.OrderBy)

	page, pagination, err := Paginate(matched, q.Pagination())
	if err != nil {
		return nil, pagination, err
	}

	out := make([]core.Record, len(page))
	for i, rec := range page {
		h, err := e.Hydrate(ctx, q.Model, rec, q.Includes)
		if err != nil {
			return nil, nil, err
		}
		out[i] = h
	}
	return out, pagination, nil
}

// Match reports whether rec satisfies g. A nil or empty group matches.
func (e *Evaluator) Match(ctx context.Context, rec core.Record, g *Group) (bool, error) {
	if g.Empty() {
		return true, nil
	}
	if g.Relation == "" {
		return e.matchLocal(ctx, rec, g)
	}
	return e.matchRelated(ctx, rec, g)
}

func (e *Evaluator) matchRelated(ctx context.Context, owner core.Record, g *Group) (bool, error) {
	parent := g.Owner
	if parent == nil {
		return false, fmt.Errorf("%w: relation %s has no owner model", core.ErrUnknownModel, g.Relation)
	}
	related, err := e.Related(ctx, parent, owner, g.Relation)
	if err != nil {
		return false, err
	}
	for _, r := range related {
		ok, err := e.matchLocal(ctx, r, g)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) matchLocal(ctx context.Context, rec core.Record, g *Group) (bool, error) {
	or := g.Combinator == Or
	for _, c := range g.Conditions {
		ok, err := Test(rec, c)
		if err != nil {
			return false, err
		}
		if or && ok {
			return true, nil
		}
		if !or && !ok {
			return false, nil
		}
	}
	for _, sub := range g.Groups {
		ok, err := e.Match(ctx, rec, sub)
		if err != nil {
			return false, err
		}
		if or && ok {
			return true, nil
		}
		if !or && !ok {
			return false, nil
		}
	}
	return !or, nil
}

// Test evaluates one condition against the record's own field.
func Test(rec core.Record, c Condition) (bool, error) {
	v := Lookup(rec, c.Field)
	switch c.Operator {
	case core.OpEquals:
		return equals(v, c.Value), nil
	case core.OpDoesNotEqual:
		return !equals(v, c.Value), nil
	case core.OpGreaterThan:
		n, ok := Compare(v, c.Value)
		return ok && v != nil && n > 0, nil
	case core.OpLessThan:
		n, ok := Compare(v, c.Value)
		return ok && v != nil && n < 0, nil
	case core.OpGreaterThanOrEqual:
		n, ok := Compare(v, c.Value)
		return ok && v != nil && n >= 0, nil
	case core.OpLessThanOrEqual:
		n, ok := Compare(v, c.Value)
		return ok && v != nil && n <= 0, nil
	case core.OpContains:
		return contains(v, c.Value), nil
	case core.OpDoesNotContain:
		return !contains(v, c.Value), nil
	case core.OpStartsWith:
		return v != nil && strings.HasPrefix(strings.ToLower(text(v)), strings.ToLower(text(c.Value))), nil
	case core.OpEndsWith:
		return v != nil && strings.HasSuffix(strings.ToLower(text(v)), strings.ToLower(text(c.Value))), nil
	case core.OpIn, core.OpNotIn:
		list, ok := asList(c.Value)
		if !ok {
			return false, fmt.Errorf("%w: %s expects a list", ErrInvalidValue, c.Operator)
		}
		found := false
		for _, item := range list {
			if equals(v, item) {
				found = true
				break
			}
		}
		return found == (c.Operator == core.OpIn), nil
	case core.OpBetween:
		lo, hi, err := Bounds(c.Value)
		if err != nil {
			return false, err
		}
		if v == nil {
			return false, nil
		}
		l, ok1 := Compare(v, lo)
		h, ok2 := Compare(v, hi)
		return ok1 && ok2 && l >= 0 && h <= 0, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
}

func equals(v, want any) bool {
	if v == nil || want == nil {
		return v == nil && want == nil
	}
	return Equal(v, want)
}

func contains(v, needle any) bool {
	if v == nil {
		return false
	}
	if list, ok := asList(v); ok {
		for _, item := range list {
			if equals(item, needle) {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(text(v)), strings.ToLower(text(needle)))
}

// Lookup reads a possibly dotted field path from a record, descending into
// hydrated single relations.
func Lookup(rec core.Record, path string) any {
	var cur any = rec
	for _, part := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case core.Record:
			cur = m[part]
		case map[string]any:
			cur = m[part]
		default:
			return nil
		}
	}
	return cur
}

// Sort orders records in place, stably, by each key in turn. Nil values sort first.
func Sort(records []core.Record, order core.OrderBy) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range order {
			a, b := Lookup(records[i], o.Field), Lookup(records[j], o.Field)
			var n int
			switch {
			case a == nil && b == nil:
				n = 0
			case a == nil:
				n = -1
			case b == nil:
				n = 1
			default:
				n, _ = Compare(a, b)
			}
			if o.Direction == core.Descending {
				n = -n
			}
			if n != 0 {
				return n < 0
			}
		}
		return false
	})
}

// Hydrate returns a copy of rec with each include attached under its name.
func (e *Evaluator) Hydrate(ctx context.Context, m *core.Model, rec core.Record, includes []*Include) (core.Record, error) {
	if len(includes) == 0 {
		return rec, nil
	}
	out := rec.Clone()
	for _, inc := range includes {
		related, err := e.Related(ctx, m, rec, inc.Name)
		if err != nil {
			return nil, err
		}

		kept := make([]core.Record, 0, len(related))
		for _, r := range related {
			ok, err := e.Match(ctx, r, inc.Filters)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			h, err := e.Hydrate(ctx, inc.Model, r, inc.Includes)
			if err != nil {
				return nil, err
			}
			kept = append(kept, h)
		}
		Sort(kept, inc.OrderBy)

		if inc.Relation.Many() {
			out[inc.Name] = kept
		} else if len(kept) > 0 {
			out[inc.Name] = kept[0]
		} else {
			out[inc.Name] = nil
		}
	}
	return out, nil
}

// Related lists the records linked to owner through the named relation.
// belongsToMany results carry their pivot record under "pivot".
func (e *Evaluator) Related(ctx context.Context, m *core.Model, owner core.Record, name string) ([]core.Record, error) {
	if e.schema == nil {
		return nil, fmt.Errorf("%w: no schema to resolve %s.%s", core.ErrUnknownModel, m.Entity, name)
	}
	relatedModel, rel, err := e.schema.Related(m, name)
	if err != nil {
		return nil, err
	}
	rel = rel.Resolved(m, relatedModel)

	candidates, err := e.list(ctx, relatedModel.Entity)
	if err != nil {
		return nil, err
	}

	var out []core.Record
	switch rel.Kind {
	case core.HasOne, core.HasMany:
		key := owner[rel.OwnerKey]
		for _, r := range candidates {
			if key != nil && equals(r[rel.ForeignKey], key) {
				out = append(out, r)
			}
		}
	case core.BelongsTo:
		key := owner[rel.ForeignKey]
		for _, r := range candidates {
			if key != nil && equals(r[rel.OwnerKey], key) {
				out = append(out, r)
			}
		}
	case core.BelongsToMany:
		pivots, err := e.list(ctx, rel.Pivot)
		if err != nil {
			return nil, err
		}
		key := owner[rel.OwnerKey]
		relatedKey := relatedModel.PrimaryKey[0]
		for _, p := range pivots {
			if key == nil || !equals(p[rel.ForeignPivotKey], key) {
				continue
			}
			for _, r := range candidates {
				if equals(r[relatedKey], p[rel.RelatedPivotKey]) {
					linked := r.Clone()
					linked["pivot"] = p.Clone()
					out = append(out, linked)
				}
			}
		}
	}
	return out, nil
}

func (e *Evaluator) list(ctx context.Context, entity string) ([]core.Record, error) {
	if recs, ok := e.cache[entity]; ok {
		return recs, nil
	}
	if e.source == nil {
		return nil, fmt.Errorf("%w: no source for %s", core.ErrUnknownModel, entity)
	}
	recs, err := e.source(ctx, entity)
	if err != nil {
		return nil, err
	}
	e.cache[entity] = recs
	return recs, nil
}
