package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		match   bool
	}{
		{pattern: "*", input: "anything", match: true},
		{pattern: "task_*", input: "task_1_result", match: true},
		{pattern: "task_*", input: "other", match: false},
		{pattern: "*_result", input: "task_1_result", match: true},
		{pattern: "*_result", input: "task_1_resultx", match: false},
		{pattern: "exact", input: "exact", match: true},
		{pattern: "exact", input: "exactly", match: false},
		{pattern: "a.b", input: "a.b", match: true},
		{pattern: "a.b", input: "axb", match: false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			re, err := compileGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.input))
		})
	}
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name  string
		query string
		key   string
		text  string
		want  float64
	}{
		{name: "exact key", query: "deploy", key: "deploy", text: "", want: 1.0},
		{name: "key prefix", query: "deploy", key: "deploy_notes", text: "", want: 0.9},
		{name: "key substring", query: "deploy", key: "predeploy", text: "", want: 0.7},
		{name: "exact text", query: "hello", key: "k", text: "hello", want: 1.0},
		{name: "text substring", query: "cache", key: "k", text: "the cache layer", want: 0.7},
		{name: "case insensitive", query: "Cache", key: "k", text: "CACHE", want: 1.0},
		{name: "best of key and text", query: "deploy", key: "deploy", text: "notes about deploys", want: 1.0},
		{name: "no match", query: "missing", key: "k", text: "other text", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, keywordScore(tt.query, tt.key, tt.text), 1e-9)
		})
	}
}
