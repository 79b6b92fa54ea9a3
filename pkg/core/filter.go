package core

// Operator is a filter predicate name.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpDoesNotEqual       Operator = "doesNotEqual"
	OpGreaterThan        Operator = "greaterThan"
	OpLessThan           Operator = "lessThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpContains           Operator = "contains"
	OpDoesNotContain     Operator = "doesNotContain"
	OpStartsWith         Operator = "startsWith"
	OpEndsWith           Operator = "endsWith"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "notIn"
	OpBetween            Operator = "between"
)

// Reserved keys of filter and include options.
const (
	KeyAnd     = "and"
	KeyOr      = "or"
	KeyOrderBy = "_orderBy"
)

var operators = map[Operator]bool{
	OpEquals: true, OpDoesNotEqual: true, OpGreaterThan: true, OpLessThan: true,
	OpGreaterThanOrEqual: true, OpLessThanOrEqual: true, OpContains: true,
	OpDoesNotContain: true, OpStartsWith: true, OpEndsWith: true, OpIn: true,
	OpNotIn: true, OpBetween: true,
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	return operators[o]
}

// Filters maps field names to predicates, relationship names to nested Filters,
// and the reserved "and"/"or" keys to lists of Filters.
//
//	core.Filters{
//		"title": core.Predicate{core.OpContains: "go"},
//		"or": []core.Filters{
//			{"age": core.Predicate{core.OpLessThan: 18}},
//			{"age": core.Predicate{core.OpGreaterThan: 65}},
//		},
//		"comments": core.Filters{"body": core.Predicate{core.OpContains: "spam"}},
//	}
//
// Plain map[string]any values decoded from JSON or YAML are accepted too.
type Filters map[string]any

// Predicate maps operators to compare values for one field.
type Predicate map[Operator]any

// With maps relationship names to nested include options. A nested
// entry may hold filters for that relation, further includes, and the
// reserved "_orderBy" directive. A value of true (or nil) includes the relation as-is.
type With map[string]any

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Order is one sort key.
type Order struct {
	Field     string    `json:"field" yaml:"field"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// OrderBy is an ordered list of sort keys.
type OrderBy []Order

// Asc and Desc build sort keys.
func Asc(field string) Order  { return Order{Field: field, Direction: Ascending} }
func Desc(field string) Order { return Order{Field: field, Direction: Descending} }
