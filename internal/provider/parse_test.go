package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/types"
)

func TestParseStructuredWholeResponseJSON(t *testing.T) {
	v, err := ParseStructured(`{"title": "x", "complexity": 3}`)
	require.NoError(t, err)
	require.Equal(t, "x", v["title"])
}

func TestParseStructuredFencedJSONBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"title\": \"y\"}\n```\nThanks."
	v, err := ParseStructured(raw)
	require.NoError(t, err)
	require.Equal(t, "y", v["title"])
}

func TestParseStructuredBalancedSpanFallback(t *testing.T) {
	raw := `Sure, the answer is {"title": "z", "nested": {"a": 1}} and that's final.`
	v, err := ParseStructured(raw)
	require.NoError(t, err)
	require.Equal(t, "z", v["title"])
}

func TestParseStructuredArraySpan(t *testing.T) {
	raw := `The subtasks are [{"title":"a"},{"title":"b"}] done.`
	v, err := ParseStructured(raw)
	require.NoError(t, err)
	items, ok := v["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
}

func TestParseStructuredUnparseableReturnsCode(t *testing.T) {
	_, err := ParseStructured("no json anywhere in this response")
	require.Error(t, err)
	require.Equal(t, types.CodeUnparseableOutput, types.CodeOf(err))
}
