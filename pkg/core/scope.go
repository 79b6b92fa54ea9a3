package core

// Fragment is the reusable part of a query: filters, includes and ordering.
type Fragment struct {
	Filters Filters `json:"filters,omitempty" yaml:"filters,omitempty"`
	With    With    `json:"with,omitempty" yaml:"with,omitempty"`
	OrderBy OrderBy `json:"orderBy,omitempty" yaml:"orderBy,omitempty"`
}

// ScopeContext is what a scope function sees when invoked.
type ScopeContext struct {
	Model  *Model
	Action Action
	Driver string
}

// Scope produces a fragment for a call.
type Scope interface {
	Apply(ctx ScopeContext, params any) Fragment
}

// StaticScope is a scope that ignores its parameters.
type StaticScope Fragment

func (s StaticScope) Apply(ScopeContext, any) Fragment {
	return Fragment(s)
}

// ScopeFunc adapts a function to Scope.
type ScopeFunc func(ctx ScopeContext, params any) Fragment

func (f ScopeFunc) Apply(ctx ScopeContext, params any) Fragment {
	return f(ctx, params)
}

// ScopeRef requests a scope by name. Parameters may be a plain value or a
// func() any getter evaluated on every call.
type ScopeRef struct {
	Name       string
	Parameters any
}

// Scoped references a scope without parameters.
func Scoped(name string) ScopeRef {
	return ScopeRef{Name: name}
}

// ScopedWith references a scope with parameters.
func ScopedWith(name string, params any) ScopeRef {
	return ScopeRef{Name: name, Parameters: params}
}

// Params evaluates the reference's parameters.
func (r ScopeRef) Params() any {
	if fn, ok := r.Parameters.(func() any); ok {
		return fn()
	}
	return r.Parameters
}
