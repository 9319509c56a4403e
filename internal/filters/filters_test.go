package filters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloglytics/internal/filters"
)

func TestParseJSONValidTrees(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, node *filters.Node)
	}{
		{
			name:  "simple eq leaf",
			input: `{"eq": {"field": "blog.title", "value": "Hello"}}`,
			check: func(t *testing.T, node *filters.Node) {
				require.NotNil(t, node.Cmp)
				assert.Equal(t, filters.OpEq, node.Cmp.Op)
				assert.Equal(t, "blog.title", node.Cmp.Field)
				assert.Equal(t, "Hello", node.Cmp.Value)
			},
		},
		{
			name:  "in leaf with list",
			input: `{"in": {"field": "country.code", "value": ["US", "DE"]}}`,
			check: func(t *testing.T, node *filters.Node) {
				require.NotNil(t, node.Cmp)
				assert.Equal(t, filters.OpIn, node.Cmp.Op)
				assert.Equal(t, []any{"US", "DE"}, node.Cmp.Value)
			},
		},
		{
			name: "nested and or not",
			input: `{"and": [
				{"eq": {"field": "author.username", "value": "alice"}},
				{"or": [
					{"gt": {"field": "blog.id", "value": 3}},
					{"not": {"contains": {"field": "blog.title", "value": "draft"}}}
				]}
			]}`,
			check: func(t *testing.T, node *filters.Node) {
				require.Len(t, node.And, 2)
				require.Len(t, node.And[1].Or, 2)
				require.NotNil(t, node.And[1].Or[1].Not)
				assert.Equal(t, filters.OpContains, node.And[1].Or[1].Not.Cmp.Op)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := filters.ParseJSON([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, node)
		})
	}
}

func TestParseJSONInvalidTrees(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{"eq": `},
		{"root not an object", `42`},
		{"placeholder key", `{"additionalProp1": {"field": "blog.id", "value": 1}}`},
		{"numbered placeholder key", `{"additionalProp12": {}}`},
		{"unrecognized operator", `{"between": {"field": "blog.id", "value": 1}}`},
		{"empty and list", `{"and": []}`},
		{"and not a list", `{"and": {"eq": {"field": "blog.id", "value": 1}}}`},
		{"empty or list", `{"or": []}`},
		{"leaf not an object", `{"eq": "blog.id"}`},
		{"leaf missing field", `{"eq": {"value": 1}}`},
		{"leaf empty field", `{"eq": {"field": "", "value": 1}}`},
		{"field not a path", `{"eq": {"field": "blog.title; DROP TABLE blogs", "value": 1}}`},
		{"leaf missing value", `{"eq": {"field": "blog.id"}}`},
		{"in value not a list", `{"in": {"field": "blog.id", "value": 1}}`},
		{"invalid child in and", `{"and": [{"eq": {"field": "blog.id"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := filters.ParseJSON([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, filters.ErrInvalidFilter)
			assert.Nil(t, node)
		})
	}
}

func TestCompile(t *testing.T) {
	resolver := filters.MapResolver(map[string]string{
		"blog.id":      "b.id",
		"blog.title":   "b.title",
		"country.code": "c.code",
	})

	tests := []struct {
		name     string
		input    string
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "eq",
			input:    `{"eq": {"field": "country.code", "value": "US"}}`,
			wantSQL:  "c.code = ?",
			wantArgs: []any{"US"},
		},
		{
			name:     "gte",
			input:    `{"gte": {"field": "blog.id", "value": 5}}`,
			wantSQL:  "b.id >= ?",
			wantArgs: []any{float64(5)},
		},
		{
			name:     "contains lowercases both sides",
			input:    `{"contains": {"field": "blog.title", "value": "Postgres"}}`,
			wantSQL:  "LOWER(b.title) LIKE ?",
			wantArgs: []any{"%postgres%"},
		},
		{
			name:     "in expands placeholders",
			input:    `{"in": {"field": "country.code", "value": ["US", "DE", "JP"]}}`,
			wantSQL:  "c.code IN (?, ?, ?)",
			wantArgs: []any{"US", "DE", "JP"},
		},
		{
			name:     "empty in matches nothing",
			input:    `{"in": {"field": "country.code", "value": []}}`,
			wantSQL:  "1 = 0",
			wantArgs: nil,
		},
		{
			name:     "not wraps inner predicate",
			input:    `{"not": {"eq": {"field": "country.code", "value": "US"}}}`,
			wantSQL:  "NOT (c.code = ?)",
			wantArgs: []any{"US"},
		},
		{
			name: "and joins children",
			input: `{"and": [
				{"eq": {"field": "country.code", "value": "US"}},
				{"lt": {"field": "blog.id", "value": 10}}
			]}`,
			wantSQL:  "(c.code = ? AND b.id < ?)",
			wantArgs: []any{"US", float64(10)},
		},
		{
			name: "or joins children",
			input: `{"or": [
				{"eq": {"field": "country.code", "value": "US"}},
				{"eq": {"field": "country.code", "value": "DE"}}
			]}`,
			wantSQL:  "(c.code = ? OR c.code = ?)",
			wantArgs: []any{"US", "DE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := filters.ParseJSON([]byte(tt.input))
			require.NoError(t, err)

			pred, err := filters.Compile(node, resolver)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, pred.SQL)
			assert.Equal(t, tt.wantArgs, pred.Args)
		})
	}
}

func TestCompileRejections(t *testing.T) {
	resolver := filters.MapResolver(map[string]string{"blog.id": "b.id"})

	tests := []struct {
		name  string
		input string
	}{
		{"unknown field", `{"eq": {"field": "secret.column", "value": 1}}`},
		{"contains with non-string value", `{"contains": {"field": "blog.id", "value": 7}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := filters.ParseJSON([]byte(tt.input))
			require.NoError(t, err)

			_, err = filters.Compile(node, resolver)
			require.Error(t, err)
			assert.ErrorIs(t, err, filters.ErrInvalidFilter)
		})
	}
}

func TestCompileNilNode(t *testing.T) {
	resolver := filters.MapResolver(map[string]string{})
	_, err := filters.Compile(nil, resolver)
	assert.ErrorIs(t, err, filters.ErrInvalidFilter)
}
