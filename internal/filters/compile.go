package filters

import (
	"fmt"
	"strings"
)

// Predicate is a compiled filter: a SQL fragment with positional
// placeholders and its bound arguments, ready for a gorm Where clause.
type Predicate struct {
	SQL  string
	Args []any
}

// FieldResolver maps a dotted filter path to a concrete column reference.
// It is the allowlist: any path it does not know is rejected before SQL
// assembly, so field names never reach the query verbatim.
type FieldResolver func(path string) (string, error)

// MapResolver builds a resolver from a fixed path-to-column table.
func MapResolver(columns map[string]string) FieldResolver {
	return func(path string) (string, error) {
		column, ok := columns[path]
		if !ok {
			return "", fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, path)
		}
		return column, nil
	}
}

// Compile lowers a parsed filter tree to a SQL predicate.
func Compile(node *Node, resolve FieldResolver) (Predicate, error) {
	if node == nil {
		return Predicate{}, fmt.Errorf("%w: nil filter node", ErrInvalidFilter)
	}

	switch {
	case node.And != nil:
		return compileList(node.And, "AND", resolve)
	case node.Or != nil:
		return compileList(node.Or, "OR", resolve)
	case node.Not != nil:
		inner, err := Compile(node.Not, resolve)
		if err != nil {
			return Predicate{}, err
		}
		return Predicate{SQL: "NOT (" + inner.SQL + ")", Args: inner.Args}, nil
	case node.Cmp != nil:
		return compileComparison(node.Cmp, resolve)
	default:
		return Predicate{}, fmt.Errorf("%w: empty filter node", ErrInvalidFilter)
	}
}

func compileList(nodes []*Node, joiner string, resolve FieldResolver) (Predicate, error) {
	parts := make([]string, 0, len(nodes))
	var args []any
	for _, child := range nodes {
		inner, err := Compile(child, resolve)
		if err != nil {
			return Predicate{}, err
		}
		parts = append(parts, inner.SQL)
		args = append(args, inner.Args...)
	}
	return Predicate{SQL: "(" + strings.Join(parts, " "+joiner+" ") + ")", Args: args}, nil
}

func compileComparison(cmp *Comparison, resolve FieldResolver) (Predicate, error) {
	column, err := resolve(cmp.Field)
	if err != nil {
		return Predicate{}, err
	}

	switch cmp.Op {
	case OpEq:
		return Predicate{SQL: column + " = ?", Args: []any{cmp.Value}}, nil
	case OpLt:
		return Predicate{SQL: column + " < ?", Args: []any{cmp.Value}}, nil
	case OpLte:
		return Predicate{SQL: column + " <= ?", Args: []any{cmp.Value}}, nil
	case OpGt:
		return Predicate{SQL: column + " > ?", Args: []any{cmp.Value}}, nil
	case OpGte:
		return Predicate{SQL: column + " >= ?", Args: []any{cmp.Value}}, nil
	case OpContains:
		needle, ok := cmp.Value.(string)
		if !ok {
			return Predicate{}, fmt.Errorf("%w: \"contains\" value must be a string, got %T", ErrInvalidFilter, cmp.Value)
		}
		return Predicate{
			SQL:  "LOWER(" + column + ") LIKE ?",
			Args: []any{"%" + strings.ToLower(needle) + "%"},
		}, nil
	case OpIn:
		list := cmp.Value.([]any)
		if len(list) == 0 {
			// Empty membership matches nothing.
			return Predicate{SQL: "1 = 0"}, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
		return Predicate{SQL: column + " IN (" + placeholders + ")", Args: list}, nil
	default:
		return Predicate{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, cmp.Op)
	}
}
