// Package scope resolves and merges named query fragments.
package scope

import (
	"fmt"
	"slices"

	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
)

// Request describes the call scopes are resolved for.
type Request struct {
	Model  *core.Model
	Action core.Action
	Driver string

	Scopes        []core.ScopeRef
	WithoutGlobal []string
	WithoutEntity []string

	// Own is the call's explicit fragment, merged last.
	Own core.Fragment
}

// Resolve merges, in order, the global scopes, the entity scopes, the scopes
// requested by the call and the call's own fragment. Requested names are looked
// up among named, entity and global scopes in that order; unknown names are
// programmer errors.
func Resolve(cfg *config.Context, req Request) (core.Fragment, error) {
	sctx := core.ScopeContext{Model: req.Model, Action: req.Action, Driver: req.Driver}
	var parts []core.Fragment

	for _, name := range cfg.ScopeNames() {
		if slices.Contains(req.WithoutGlobal, name) {
			continue
		}
		if s, ok := cfg.Scope(name); ok {
			parts = append(parts, s.Apply(sctx, nil))
		}
	}

	entity := req.Model.Entity
	for _, name := range cfg.EntityScopeNames(entity) {
		if slices.Contains(req.WithoutEntity, name) {
			continue
		}
		if s, ok := cfg.EntityScope(entity, name); ok {
			parts = append(parts, s.Apply(sctx, nil))
		}
	}

	for _, ref := range req.Scopes {
		s, ok := cfg.NamedScope(ref.Name)
		if !ok {
			s, ok = cfg.EntityScope(entity, ref.Name)
		}
		if !ok {
			s, ok = cfg.Scope(ref.Name)
		}
		if !ok {
			return core.Fragment{}, fmt.Errorf("%w: %q", core.ErrUnknownScope, ref.Name)
		}
		parts = append(parts, s.Apply(sctx, ref.Params()))
	}

	parts = append(parts, req.Own)
	return Merge(parts...), nil
}

// Merge combines fragments. Filters are unioned, a field constrained by more
// than one fragment keeps every constraint under "and". Includes are unioned
// recursively and orderBy lists are concatenated in argument order.
func Merge(fragments ...core.Fragment) core.Fragment {
	var out core.Fragment
	for _, f := range fragments {
		out.Filters = MergeFilters(out.Filters, f.Filters)
		out.With = MergeWith(out.With, f.With)
		out.OrderBy = append(out.OrderBy, f.OrderBy...)
	}
	return out
}

// MergeFilters returns the union of a and b without mutating either.
func MergeFilters(a, b core.Filters) core.Filters {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make(core.Filters, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		existing, ok := out[k]
		switch {
		case !ok:
			out[k] = v
		case k == core.KeyAnd || k == core.KeyOr:
			out[k] = append(filterItems(existing), filterItems(v)...)
		default:
			out[core.KeyAnd] = append(filterItems(out[core.KeyAnd]), core.Filters{k: v})
		}
	}
	return out
}

// MergeWith returns the recursive union of a and b without mutating either.
// Inside an included relation, attribute predicates follow the MergeFilters
// rule and "_orderBy" lists are concatenated.
func MergeWith(a, b core.With) core.With {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make(core.With, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		out[k] = mergeInclude(existing, v)
	}
	return out
}

// mergeInclude merges two entries of the same relation.
func mergeInclude(a, b any) any {
	ea, aok := asWith(a)
	eb, bok := asWith(b)
	switch {
	case aok && bok:
	case aok:
		return ea
	default:
		return b
	}
	if len(eb) == 0 {
		return ea
	}
	if len(ea) == 0 {
		return eb
	}

	out := make(core.With, len(ea)+len(eb))
	for k, v := range ea {
		out[k] = v
	}
	for k, v := range eb {
		existing, ok := out[k]
		switch {
		case !ok:
			out[k] = v
		case k == core.KeyOrderBy:
			out[k] = concatOrder(existing, v)
		case k == core.KeyAnd || k == core.KeyOr:
			out[k] = append(filterItems(existing), filterItems(v)...)
		case isPredicate(existing) || isPredicate(v):
			out[core.KeyAnd] = append(filterItems(out[core.KeyAnd]), core.Filters{k: v})
		default:
			out[k] = mergeInclude(existing, v)
		}
	}
	return out
}

// isPredicate reports whether v constrains an attribute rather than
// including a relation: a scalar or list compared for equality, or a map
// holding only operators.
func isPredicate(v any) bool {
	var m map[string]any
	switch x := v.(type) {
	case nil, bool:
		return false
	case core.Predicate:
		return true
	case core.With:
		m = x
	case core.Filters:
		m = x
	case map[string]any:
		m = x
	default:
		return true
	}
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !core.Operator(k).Valid() {
			return false
		}
	}
	return true
}

func asWith(v any) (core.With, bool) {
	switch x := v.(type) {
	case core.With:
		return x, true
	case map[string]any:
		return core.With(x), true
	case core.Filters:
		return core.With(x), true
	case bool:
		if x {
			return core.With{}, true
		}
	case nil:
		return core.With{}, true
	}
	return nil, false
}

func filterItems(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return slices.Clone(x)
	case []core.Filters:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	case core.OrderBy:
		out := make([]any, len(x))
		for i, o := range x {
			out[i] = o
		}
		return out
	}
	return []any{v}
}

func concatOrder(a, b any) any {
	oa, aok := a.(core.OrderBy)
	ob, bok := b.(core.OrderBy)
	if aok && bok {
		return append(slices.Clone(oa), ob...)
	}
	return append(filterItems(a), filterItems(b)...)
}
