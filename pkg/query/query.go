// Package query translates declarative filter, include, order and pagination
// options into a driver-neutral tree, and evaluates that tree against
// in-memory records for drivers that have no query engine of their own.
package query

import (
	"errors"
	"strings"

	"github.com/aretw0/strata/pkg/core"
)

var (
	// ErrUnknownOperator is returned for predicate names outside the filter vocabulary.
	ErrUnknownOperator = errors.New("unknown filter operator")
	// ErrInvalidValue is returned when a compare value has the wrong shape for its operator.
	ErrInvalidValue = errors.New("invalid filter value")
	// ErrInvalidOrder is returned for malformed order directives.
	ErrInvalidOrder = errors.New("invalid order directive")
)

// Combinator joins sibling conditions.
type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

// Clause is one native condition produced by a Dialect.
type Clause struct {
	Op    string
	Value any
}

// Condition is a leaf predicate on one field.
type Condition struct {
	// Path holds the relation names leading to Field, outermost first.
	Path     []string
	Field    string
	Operator core.Operator
	Value    any
	// Clauses is the dialect's rendition of Operator and Value.
	Clauses []Clause
	// Combinator tags how the condition joins its siblings.
	Combinator Combinator
}

// Dotted returns the flattened path of the condition, e.g. comments.author.name.
func (c Condition) Dotted() string {
	if len(c.Path) == 0 {
		return c.Field
	}
	return strings.Join(c.Path, ".") + "." + c.Field
}

// Group is a set of conditions and subgroups joined by one combinator.
// A group with Relation set holds when at least one record related through
// Owner satisfies it.
type Group struct {
	Combinator Combinator
	Relation   string
	Owner      *core.Model
	Path       []string
	Model      *core.Model
	Conditions []Condition
	Groups     []*Group
}

// Empty reports whether the group constrains nothing.
func (g *Group) Empty() bool {
	return g == nil || (len(g.Conditions) == 0 && len(g.Groups) == 0)
}

// Include is one resolved relationship to hydrate.
type Include struct {
	Name     string
	Path     []string
	Relation core.Relation
	Model    *core.Model
	Filters  *Group
	OrderBy  core.OrderBy
	Includes []*Include
}

// Dotted returns the flattened relation path, e.g. comments.author.
func (i *Include) Dotted() string {
	return strings.Join(i.Path, ".")
}

// Query is the translated form of a driver call.
type Query struct {
	Action   core.Action
	Model    *core.Model
	Filters  *Group
	Includes []*Include
	OrderBy  core.OrderBy

	// Page and RecordsPerPage echo the request. Limit and Offset are derived.
	Page           int
	RecordsPerPage int
	Limit          int
	Offset         int
}

// Paginated reports whether the query requests a page size.
func (q *Query) Paginated() bool {
	return q.RecordsPerPage > 0
}

// Pagination returns the page request carried by the query.
func (q *Query) Pagination() *core.Pagination {
	if !q.Paginated() {
		return nil
	}
	return core.Page(q.Page, q.RecordsPerPage)
}
