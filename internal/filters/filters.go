// Package filters parses the client-supplied JSON filter tree into an
// expression AST and lowers it to a SQL predicate through an allowlisted
// field resolver. Parsing and compilation are side-effect free.
package filters

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidFilter marks every malformed-filter failure. The HTTP layer maps
// it to a client error; callers check it with errors.Is.
var ErrInvalidFilter = errors.New("invalid filter")

// Op is a leaf comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpContains Op = "contains"
	OpIn       Op = "in"
)

// Comparison is a single field/operator/value leaf.
type Comparison struct {
	Op    Op
	Field string
	Value any
}

// Node is one vertex of the boolean filter tree. Exactly one of the four
// variants is set.
type Node struct {
	And []*Node
	Or  []*Node
	Not *Node
	Cmp *Comparison
}

var comparisonOps = map[string]Op{
	"eq":       OpEq,
	"lt":       OpLt,
	"lte":      OpLte,
	"gt":       OpGt,
	"gte":      OpGte,
	"contains": OpContains,
	"in":       OpIn,
}

// fieldPathPattern accepts dotted identifier paths only, never raw
// expressions. This is the injection boundary for field names.
var fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// placeholderKeyPattern catches unfilled client templates such as
// "additionalProp1" that schema-driven clients submit verbatim.
var placeholderKeyPattern = regexp.MustCompile(`^additionalProp\d*$`)

// ParseJSON decodes raw JSON and parses it into a filter tree.
func ParseJSON(data []byte) (*Node, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %v", ErrInvalidFilter, err)
	}
	return Parse(raw)
}

// Parse validates a decoded filter tree and builds the AST. Every rejection
// wraps ErrInvalidFilter.
func Parse(raw any) (*Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: filter node must be an object, got %T", ErrInvalidFilter, raw)
	}

	for key := range obj {
		if placeholderKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("%w: placeholder key %q, template was not filled in", ErrInvalidFilter, key)
		}
	}

	if children, ok := obj["and"]; ok {
		nodes, err := parseList("and", children)
		if err != nil {
			return nil, err
		}
		return &Node{And: nodes}, nil
	}

	if children, ok := obj["or"]; ok {
		nodes, err := parseList("or", children)
		if err != nil {
			return nil, err
		}
		return &Node{Or: nodes}, nil
	}

	if child, ok := obj["not"]; ok {
		node, err := Parse(child)
		if err != nil {
			return nil, err
		}
		return &Node{Not: node}, nil
	}

	for key, op := range comparisonOps {
		if leaf, ok := obj[key]; ok {
			cmp, err := parseComparison(op, leaf)
			if err != nil {
				return nil, err
			}
			return &Node{Cmp: cmp}, nil
		}
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	return nil, fmt.Errorf("%w: no recognized operator in keys [%s]", ErrInvalidFilter, strings.Join(keys, ", "))
}

func parseList(combinator string, raw any) ([]*Node, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q value must be a list, got %T", ErrInvalidFilter, combinator, raw)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %q list must not be empty", ErrInvalidFilter, combinator)
	}

	nodes := make([]*Node, 0, len(list))
	for _, child := range list {
		node, err := Parse(child)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseComparison(op Op, raw any) (*Comparison, error) {
	leaf, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q value must be an object with field and value", ErrInvalidFilter, op)
	}

	fieldRaw, ok := leaf["field"]
	if !ok {
		return nil, fmt.Errorf("%w: %q leaf is missing field", ErrInvalidFilter, op)
	}
	field, ok := fieldRaw.(string)
	if !ok || field == "" {
		return nil, fmt.Errorf("%w: %q field must be a non-empty string", ErrInvalidFilter, op)
	}
	if !fieldPathPattern.MatchString(field) {
		return nil, fmt.Errorf("%w: field %q is not a dotted identifier path", ErrInvalidFilter, field)
	}

	value, ok := leaf["value"]
	if !ok {
		return nil, fmt.Errorf("%w: %q leaf is missing value", ErrInvalidFilter, op)
	}

	if op == OpIn {
		if _, ok := value.([]any); !ok {
			return nil, fmt.Errorf("%w: \"in\" value must be a list, got %T", ErrInvalidFilter, value)
		}
	}

	return &Comparison{Op: op, Field: field, Value: value}, nil
}
