package query

import (
	"fmt"

	"github.com/aretw0/strata/pkg/core"
)

// Dialect maps a filter operator onto a backend's native vocabulary.
type Dialect interface {
	Clauses(op core.Operator, value any) ([]Clause, error)
}

// DialectFunc adapts a function to Dialect.
type DialectFunc func(op core.Operator, value any) ([]Clause, error)

func (f DialectFunc) Clauses(op core.Operator, value any) ([]Clause, error) {
	return f(op, value)
}

// Identity keeps operator names as they are, for backends speaking the
// declarative vocabulary themselves.
var Identity Dialect = DialectFunc(func(op core.Operator, value any) ([]Clause, error) {
	if op == core.OpBetween {
		if _, _, err := Bounds(value); err != nil {
			return nil, err
		}
	}
	return []Clause{{Op: string(op), Value: value}}, nil
})

// SQL renders operators as SQL comparison operators. contains and its
// siblings become LIKE patterns and between becomes two bound conditions.
var SQL Dialect = DialectFunc(sqlClauses)

func sqlClauses(op core.Operator, value any) ([]Clause, error) {
	switch op {
	case core.OpEquals:
		if value == nil {
			return []Clause{{Op: "IS NULL"}}, nil
		}
		return []Clause{{Op: "=", Value: value}}, nil
	case core.OpDoesNotEqual:
		if value == nil {
			return []Clause{{Op: "IS NOT NULL"}}, nil
		}
		return []Clause{{Op: "<>", Value: value}}, nil
	case core.OpGreaterThan:
		return []Clause{{Op: ">", Value: value}}, nil
	case core.OpLessThan:
		return []Clause{{Op: "<", Value: value}}, nil
	case core.OpGreaterThanOrEqual:
		return []Clause{{Op: ">=", Value: value}}, nil
	case core.OpLessThanOrEqual:
		return []Clause{{Op: "<=", Value: value}}, nil
	case core.OpContains:
		return []Clause{{Op: "LIKE", Value: fmt.Sprintf("%%%v%%", value)}}, nil
	case core.OpDoesNotContain:
		return []Clause{{Op: "NOT LIKE", Value: fmt.Sprintf("%%%v%%", value)}}, nil
	case core.OpStartsWith:
		return []Clause{{Op: "LIKE", Value: fmt.Sprintf("%v%%", value)}}, nil
	case core.OpEndsWith:
		return []Clause{{Op: "LIKE", Value: fmt.Sprintf("%%%v", value)}}, nil
	case core.OpIn, core.OpNotIn:
		list, ok := asList(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a list, got %T", ErrInvalidValue, op, value)
		}
		native := "IN"
		if op == core.OpNotIn {
			native = "NOT IN"
		}
		return []Clause{{Op: native, Value: list}}, nil
	case core.OpBetween:
		lo, hi, err := Bounds(value)
		if err != nil {
			return nil, err
		}
		return []Clause{{Op: ">=", Value: lo}, {Op: "<=", Value: hi}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

// Bounds splits a between value into its inclusive lower and upper bounds.
func Bounds(value any) (any, any, error) {
	list, ok := asList(value)
	if !ok || len(list) != 2 {
		return nil, nil, fmt.Errorf("%w: between expects two bounds, got %v", ErrInvalidValue, value)
	}
	return list[0], list[1], nil
}
