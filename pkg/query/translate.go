package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/aretw0/strata/pkg/core"
)

// Translator turns a driver options bag into a Query. Requests the driver
// cannot honour are reported through Warner and dropped.
type Translator struct {
	Schema   *core.Schema
	Dialect  Dialect
	Features core.Features
	Warner   *Warner
}

type featureKeys struct {
	filter, filterNested, order, orderNested, with, pagination core.Feature
}

func keysFor(action core.Action) featureKeys {
	if action == core.ActionIndex {
		return featureKeys{
			filter:       core.FeatureIndexFilter,
			filterNested: core.FeatureIndexFilterNested,
			order:        core.FeatureIndexOrder,
			orderNested:  core.FeatureIndexOrderNested,
			with:         core.FeatureIndexWith,
			pagination:   core.FeatureIndexPagination,
		}
	}
	return featureKeys{
		filterNested: core.FeatureFindFilterNested,
		orderNested:  core.FeatureFindOrderNested,
		with:         core.FeatureFindWith,
	}
}

// Translate builds the query for one call.
func (t *Translator) Translate(action core.Action, m *core.Model, opts core.DriverOptions) (*Query, error) {
	keys := keysFor(action)
	q := &Query{Action: action, Model: m}

	if len(opts.Filters) > 0 {
		if t.allowed(keys.filter) {
			g, err := t.group(m, nil, opts.Filters, And, keys)
			if err != nil {
				return nil, err
			}
			q.Filters = g
		}
	}

	if len(opts.OrderBy) > 0 && t.allowed(keys.order) {
		for _, o := range opts.OrderBy {
			if strings.Contains(o.Field, ".") && !t.allowed(keys.orderNested) {
				continue
			}
			q.OrderBy = append(q.OrderBy, normalizeOrder(o))
		}
	}

	if len(opts.With) > 0 && t.allowed(keys.with) {
		incs, err := t.includes(m, nil, opts.With, keys)
		if err != nil {
			return nil, err
		}
		q.Includes = incs
	}

	if action == core.ActionIndex && opts.Pagination != nil && opts.Pagination.RecordsPerPage > 0 {
		if t.allowed(keys.pagination) {
			p := opts.Pagination
			q.Page = p.CurrentPage()
			q.RecordsPerPage = p.RecordsPerPage
			q.Limit = p.RecordsPerPage
			if q.Page > 1 {
				q.Offset = (q.Page - 1) * p.RecordsPerPage
			}
		}
	}
	return q, nil
}

// allowed reports whether the driver supports f, warning when it does not.
// The empty feature is always supported.
func (t *Translator) allowed(f core.Feature) bool {
	if f == "" || t.Features == nil || t.Features.Supports(f) {
		return true
	}
	t.Warner.Warn(f)
	return false
}

func (t *Translator) dialect() Dialect {
	if t.Dialect == nil {
		return Identity
	}
	return t.Dialect
}

func (t *Translator) related(m *core.Model, name string) (*core.Model, core.Relation, error) {
	if t.Schema == nil {
		return nil, core.Relation{}, fmt.Errorf("%w: no schema to resolve %s.%s", core.ErrUnknownModel, m.Entity, name)
	}
	related, rel, err := t.Schema.Related(m, name)
	if err != nil {
		return nil, core.Relation{}, err
	}
	return related, rel.Resolved(m, related), nil
}

func (t *Translator) group(m *core.Model, path []string, f core.Filters, comb Combinator, keys featureKeys) (*Group, error) {
	g := &Group{Combinator: comb, Path: path, Model: m}

	for _, key := range sortedKeys(f) {
		v := f[key]

		if key == core.KeyAnd || key == core.KeyOr {
			items, err := filterList(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			sub := &Group{Combinator: Combinator(key), Path: path, Model: m}
			for _, item := range items {
				ig, err := t.group(m, path, item, And, keys)
				if err != nil {
					return nil, err
				}
				if ig.Empty() {
					continue
				}
				if len(ig.Groups) == 0 && len(ig.Conditions) == 1 {
					c := ig.Conditions[0]
					c.Combinator = sub.Combinator
					sub.Conditions = append(sub.Conditions, c)
					continue
				}
				sub.Groups = append(sub.Groups, ig)
			}
			if !sub.Empty() {
				g.Groups = append(g.Groups, sub)
			}
			continue
		}

		if _, ok := m.Relation(key); ok {
			if !t.allowed(keys.filterNested) {
				continue
			}
			related, _, err := t.related(m, key)
			if err != nil {
				return nil, err
			}
			nested, ok := asFilters(v)
			if !ok {
				return nil, fmt.Errorf("%w: relation filter %s expects a mapping, got %T", ErrInvalidValue, key, v)
			}
			child, err := t.group(related, appendPath(path, key), nested, And, keys)
			if err != nil {
				return nil, err
			}
			child.Relation = key
			child.Owner = m
			g.Groups = append(g.Groups, child)
			continue
		}

		conds, err := t.conditions(path, key, v, comb)
		if err != nil {
			return nil, err
		}
		g.Conditions = append(g.Conditions, conds...)
	}
	return g, nil
}

func (t *Translator) conditions(path []string, field string, v any, comb Combinator) ([]Condition, error) {
	pred, ok, err := asPredicate(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if !ok {
		pred = map[core.Operator]any{core.OpEquals: v}
	}

	ops := make([]core.Operator, 0, len(pred))
	for op := range pred {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

	out := make([]Condition, 0, len(ops))
	for _, op := range ops {
		if !op.Valid() {
			return nil, fmt.Errorf("%s: %w: %q", field, ErrUnknownOperator, op)
		}
		clauses, err := t.dialect().Clauses(op, pred[op])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, Condition{
			Path:       path,
			Field:      field,
			Operator:   op,
			Value:      pred[op],
			Clauses:    clauses,
			Combinator: comb,
		})
	}
	return out, nil
}

func (t *Translator) includes(m *core.Model, path []string, with map[string]any, keys featureKeys) ([]*Include, error) {
	var out []*Include
	for _, name := range sortedKeys(with) {
		spec, ok, err := includeSpec(with[name])
		if err != nil {
			return nil, fmt.Errorf("with %s: %w", name, err)
		}
		if !ok {
			continue
		}
		related, rel, err := t.related(m, name)
		if err != nil {
			return nil, err
		}
		inc := &Include{Name: name, Path: appendPath(path, name), Relation: rel, Model: related}

		filters := core.Filters{}
		nested := map[string]any{}
		for k, v := range spec {
			switch {
			case k == core.KeyOrderBy:
				order, err := ParseOrderBy(v)
				if err != nil {
					return nil, fmt.Errorf("with %s: %w", inc.Dotted(), err)
				}
				if t.allowed(keys.orderNested) {
					inc.OrderBy = order
				}
			case k != core.KeyAnd && k != core.KeyOr && isRelation(related, k):
				nested[k] = v
			default:
				filters[k] = v
			}
		}

		if len(filters) > 0 {
			g, err := t.group(related, inc.Path, filters, And, keys)
			if err != nil {
				return nil, err
			}
			inc.Filters = g
		}
		if len(nested) > 0 {
			children, err := t.includes(related, inc.Path, nested, keys)
			if err != nil {
				return nil, err
			}
			inc.Includes = children
		}
		out = append(out, inc)
	}
	return out, nil
}

// ParseOrderBy reads an order directive from its typed or decoded form.
func ParseOrderBy(v any) (core.OrderBy, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case core.OrderBy:
		return normalizeOrders(x)
	case []core.Order:
		return normalizeOrders(x)
	case core.Order:
		return normalizeOrders([]core.Order{x})
	}
	list, ok := asList(v)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrInvalidOrder, v)
	}
	out := make(core.OrderBy, 0, len(list))
	for _, item := range list {
		switch o := item.(type) {
		case core.Order:
			out = append(out, o)
		case map[string]any:
			field, _ := o["field"].(string)
			dir, _ := o["direction"].(string)
			out = append(out, core.Order{Field: field, Direction: core.Direction(dir)})
		default:
			return nil, fmt.Errorf("%w: unexpected item %T", ErrInvalidOrder, item)
		}
	}
	return normalizeOrders(out)
}

func normalizeOrders(in []core.Order) (core.OrderBy, error) {
	out := make(core.OrderBy, len(in))
	for i, o := range in {
		if o.Field == "" {
			return nil, fmt.Errorf("%w: missing field", ErrInvalidOrder)
		}
		switch strings.ToLower(string(o.Direction)) {
		case "", "asc", "ascending", "desc", "descending":
		default:
			return nil, fmt.Errorf("%w: direction %q", ErrInvalidOrder, o.Direction)
		}
		out[i] = normalizeOrder(o)
	}
	return out, nil
}

func normalizeOrder(o core.Order) core.Order {
	switch strings.ToLower(string(o.Direction)) {
	case "desc", "descending":
		o.Direction = core.Descending
	default:
		o.Direction = core.Ascending
	}
	return o
}

func isRelation(m *core.Model, name string) bool {
	_, ok := m.Relation(name)
	return ok
}

func appendPath(path []string, name string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, name)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func asFilters(v any) (core.Filters, bool) {
	switch x := v.(type) {
	case core.Filters:
		return x, true
	case map[string]any:
		return core.Filters(x), true
	case core.With:
		return core.Filters(x), true
	}
	return nil, false
}

func filterList(v any) ([]core.Filters, error) {
	switch x := v.(type) {
	case []core.Filters:
		return x, nil
	case []map[string]any:
		out := make([]core.Filters, len(x))
		for i, f := range x {
			out[i] = core.Filters(f)
		}
		return out, nil
	}
	if f, ok := asFilters(v); ok {
		return []core.Filters{f}, nil
	}
	list, ok := asList(v)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of filters, got %T", ErrInvalidValue, v)
	}
	out := make([]core.Filters, 0, len(list))
	for _, item := range list {
		f, ok := asFilters(item)
		if !ok {
			return nil, fmt.Errorf("%w: expected filters, got %T", ErrInvalidValue, item)
		}
		out = append(out, f)
	}
	return out, nil
}

// asPredicate reports whether v is an operator map. Maps keyed by strings
// must only use known operators.
func asPredicate(v any) (map[core.Operator]any, bool, error) {
	switch x := v.(type) {
	case core.Predicate:
		return x, true, nil
	case map[core.Operator]any:
		return x, true, nil
	case map[string]any:
		out := make(map[core.Operator]any, len(x))
		for k, val := range x {
			op := core.Operator(k)
			if !op.Valid() {
				return nil, false, fmt.Errorf("%w: %q", ErrUnknownOperator, k)
			}
			out[op] = val
		}
		return out, true, nil
	case core.Filters:
		return asPredicate(map[string]any(x))
	}
	return nil, false, nil
}

func includeSpec(v any) (map[string]any, bool, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{}, true, nil
	case bool:
		return map[string]any{}, x, nil
	case core.With:
		return x, true, nil
	case core.Filters:
		return x, true, nil
	case map[string]any:
		return x, true, nil
	}
	return nil, false, fmt.Errorf("%w: include expects true or a mapping, got %T", ErrInvalidValue, v)
}

func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
