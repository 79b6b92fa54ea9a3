package query

import (
	"fmt"
	"strings"
)

// Where renders a group translated with the SQL dialect as a WHERE body with
// positional placeholders. Conditions on related records use their dotted
// path as column name and relation groups render as EXISTS over that path.
func Where(g *Group) (string, []any) {
	if g.Empty() {
		return "", nil
	}
	var args []any
	return where(g, &args), args
}

func where(g *Group, args *[]any) string {
	joiner := " AND "
	if g.Combinator == Or {
		joiner = " OR "
	}

	var parts []string
	for _, c := range g.Conditions {
		parts = append(parts, condition(c, args))
	}
	for _, sub := range g.Groups {
		if sub.Empty() {
			continue
		}
		body := where(sub, args)
		if sub.Relation != "" {
			parts = append(parts, fmt.Sprintf("EXISTS (%s: %s)", strings.Join(sub.Path, "."), body))
			continue
		}
		parts = append(parts, "("+body+")")
	}
	return strings.Join(parts, joiner)
}

func condition(c Condition, args *[]any) string {
	column := c.Dotted()
	parts := make([]string, 0, len(c.Clauses))
	for _, cl := range c.Clauses {
		switch cl.Op {
		case "IS NULL", "IS NOT NULL":
			parts = append(parts, column+" "+cl.Op)
		case "IN", "NOT IN":
			list, _ := asList(cl.Value)
			marks := make([]string, len(list))
			for i, v := range list {
				marks[i] = "?"
				*args = append(*args, v)
			}
			parts = append(parts, fmt.Sprintf("%s %s (%s)", column, cl.Op, strings.Join(marks, ", ")))
		default:
			parts = append(parts, column+" "+cl.Op+" ?")
			*args = append(*args, cl.Value)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}
