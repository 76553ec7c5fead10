package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calcstack/calcbook/internal/state"
)

func TestParseSetFlags(t *testing.T) {
	params, err := parseSetFlags([]string{"growth=0.1", "region=north", "enabled=true"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"growth":  0.1,
		"region":  "north",
		"enabled": true,
	}, params)
}

func TestParseSetFlags_Invalid(t *testing.T) {
	for _, bad := range []string{"growth", "=0.1"} {
		_, err := parseSetFlags([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseSetFlags_Empty(t *testing.T) {
	params, err := parseSetFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestParseGrid(t *testing.T) {
	grid, err := parseGrid([]string{"growth=0.05,0.1", "churn=0.01"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]any{
		"growth": {0.05, 0.1},
		"churn":  {0.01},
	}, grid)

	_, err = parseGrid([]string{"growth="})
	assert.Error(t, err)
}

func TestExpandGrid(t *testing.T) {
	combos := expandGrid(map[string][]any{
		"a": {1.0, 2.0},
		"b": {"x", "y"},
	})
	require.Len(t, combos, 4)

	// Sorted-name expansion makes the sequence stable.
	assert.Equal(t, map[string]any{"a": 1.0, "b": "x"}, combos[0])
	assert.Equal(t, map[string]any{"a": 1.0, "b": "y"}, combos[1])
	assert.Equal(t, map[string]any{"a": 2.0, "b": "x"}, combos[2])
	assert.Equal(t, map[string]any{"a": 2.0, "b": "y"}, combos[3])

	assert.Nil(t, expandGrid(nil))
}

func TestRenderCombo(t *testing.T) {
	s := renderCombo(map[string]any{"b": 2.0, "a": 1.0})
	assert.Equal(t, "a=1 b=2", s)
}

func TestRenderValue(t *testing.T) {
	assert.Equal(t, "null", renderValue(nil))
	assert.Equal(t, "12.5", renderValue(12.5))
	assert.Equal(t, "hello", renderValue("hello"))
	assert.Equal(t, "true", renderValue(true))
	assert.Equal(t, "2024-02-29", renderValue(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "[1, 2, null]", renderValue([]any{1.0, 2.0, nil}))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcd1234", shortID("abcd1234-efgh"))
	assert.Equal(t, "ab", shortID("ab"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "long st...", truncate("long string here", 10))
}

func TestRunDuration(t *testing.T) {
	started := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	done := started.Add(1500 * time.Millisecond)
	assert.Equal(t, "-", runDuration(&state.Run{StartedAt: started}))
	assert.Equal(t, "1.5s", runDuration(&state.Run{StartedAt: started, CompletedAt: &done}))
}
