package codedetector

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Score
// ==========================

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		isCode bool
	}{
		{
			name:   "short keyword",
			input:  "function",
			want:   0,
			isCode: false,
		},
		{
			name:   "short snippet under min length",
			input:  "function f() {}",
			want:   0,
			isCode: false,
		},
		{
			name:   "fence",
			input:  "Use this:\n```go\nfmt.Println(x)\n```",
			want:   1.0,
			isCode: true,
		},
		{
			name:   "two python signatures",
			input:  "def foo():\n    import os",
			want:   0.9,
			isCode: true,
		},
		{
			name:   "javascript arrow and const",
			input:  "const total = items.reduce((a, b) => a + b, 0);",
			want:   0.9,
			isCode: true,
		},
		{
			name:   "go function with body",
			input:  "func main() {\n\tfmt.Println(\"hi\")\n}",
			want:   0.7,
			isCode: true,
		},
		{
			name:   "single signature without supporting syntax",
			input:  "package management is handled upstream",
			want:   0,
			isCode: false,
		},
		{
			name:   "plain requirement prose",
			input:  "Users must be able to import data from CSV files and export reports.",
			want:   0,
			isCode: false,
		},
		{
			name:   "dense punctuation",
			input:  strings.Repeat("a", 18) + "()",
			want:   0.5,
			isCode: false,
		},
		{
			name:   "moderate punctuation",
			input:  strings.Repeat("a", 28) + "()",
			want:   0.3,
			isCode: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.input), 1e-9)
			assert.Equal(t, tt.isCode, IsCode(tt.input))
		})
	}
}

func TestScore_SingleSignatureBonuses(t *testing.T) {
	// def signature + indented continuation + call syntax
	s := "def run(self):\n    return compute(self.items)"
	assert.InDelta(t, 0.7, Score(s), 1e-9)

	capped := "def run(x):\n    y = {1: 2};\n    return f(y);"
	assert.LessOrEqual(t, Score(capped), 1.0)
	assert.True(t, IsCode(capped))
}

// ==========================
// ContainsCode
// ==========================

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestContainsCode(t *testing.T) {
	code := `def foo():\n    import os`

	tests := []struct {
		name     string
		input    string
		found    bool
		location string
	}{
		{
			name:  "no strings",
			input: `{"count": 3, "enabled": true, "ratio": 0.5, "none": null}`,
			found: false,
		},
		{
			name:  "prose only",
			input: `{"summary": "The service stores uploaded documents and indexes them for search."}`,
			found: false,
		},
		{
			name:     "top level key",
			input:    `{"name": "x", "body": "` + code + `"}`,
			found:    true,
			location: "body",
		},
		{
			name:     "nested path",
			input:    `{"a": {"b": ["short", {"c": "` + code + `"}]}}`,
			found:    true,
			location: "a.b[1].c",
		},
		{
			name:     "first hit in key order",
			input:    `{"zeta": "` + code + `", "alpha": "` + code + `"}`,
			found:    true,
			location: "alpha",
		},
		{
			name:     "root array",
			input:    `["fine", "` + code + `"]`,
			found:    true,
			location: "[1]",
		},
		{
			name:     "root string",
			input:    `"` + code + `"`,
			found:    true,
			location: "$",
		},
		{
			name:     "literal escaped newline still flagged",
			input:    `{"name": "x", "desc": "def run():\\n    pass"}`,
			found:    true,
			location: "desc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := ContainsCode(decode(t, tt.input))
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.location, f.Location)
				assert.NotEmpty(t, f.Snippet)
				assert.GreaterOrEqual(t, f.Score, Threshold)
			}
		})
	}
}
