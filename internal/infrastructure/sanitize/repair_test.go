package sanitize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairTrailingComma(t *testing.T) {
	out := Repair(`{"a": 1,}`)
	assert.True(t, ValidJSON([]byte(out)))
	out = Repair(`{"a": [1, 2,],}`)
	assert.True(t, ValidJSON([]byte(out)))
}

func TestRepairUnbalancedBrackets(t *testing.T) {
	out := Repair(`{"urls":[{"tags":["malware"]}`)
	require.True(t, ValidJSON([]byte(out)))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	urls := parsed["urls"].([]any)
	assert.Len(t, urls, 1)
}

func TestRepairUnclosedString(t *testing.T) {
	out := Repair(`{"a": "truncated val`)
	assert.True(t, ValidJSON([]byte(out)))
}

func TestRepairInnerQuotes(t *testing.T) {
	out := Repair(`{
"name": "say "hello" twice",
"n": 1
}`)
	require.True(t, ValidJSON([]byte(out)))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, `say "hello" twice`, parsed["name"])
}

func TestRepairIdempotentOnValidInput(t *testing.T) {
	in := `{"a": [1, 2], "b": {"c": "d"}}`
	assert.Equal(t, in, Repair(in))
}
