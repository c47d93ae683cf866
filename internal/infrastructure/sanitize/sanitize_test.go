package sanitize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRemovesDangerSet(t *testing.T) {
	assert.Equal(t, "EvilCorp", Clean("Evil\x00Corp"))
	assert.Equal(t, "US", Clean("US\x16"))
	assert.Equal(t, "abc", Clean("\x01a\x08b\x0bc\x7f"))
}

func TestCleanPreservesSafeWhitespace(t *testing.T) {
	assert.Equal(t, "a\tb\nc\rd e", Clean("a\tb\nc\rd e"))
}

func TestCleanRemovesC1Range(t *testing.T) {
	assert.Equal(t, "xy", Clean("xy"))
}

func TestStringStrictRemovesWhitespace(t *testing.T) {
	got := String("a\tb\nc\rd", Options{Strict: true})
	assert.Equal(t, "abcd", got)
}

func TestStringDropsInvalidUTF8(t *testing.T) {
	got := Clean("ok\xff\xfestill ok")
	assert.Equal(t, "okstill ok", got)
	assert.True(t, strings.ToValidUTF8(got, "") == got)
}

func TestStringIdempotent(t *testing.T) {
	inputs := []string{
		"Evil\x00Corp",
		"plain text",
		"mix\x16ed  stuff\xff",
		"a\tb\nc",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestStringReplacement(t *testing.T) {
	got := String("a\x00b", Options{PreserveWhitespace: true, Replacement: "?"})
	assert.Equal(t, "a?b", got)
}

func TestJSONTreeSanitizesKeysAndValues(t *testing.T) {
	tree := map[string]any{
		"as\x00name": "Evil\x00Corp",
		"nested": []any{
			map[string]any{"country": "US\x16"},
			"ta\x01g",
			float64(5),
		},
	}

	clean, ok := JSONTree(tree).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EvilCorp", clean["asname"])

	nested, ok := clean["nested"].([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"country": "US"}, nested[0])
	assert.Equal(t, "tag", nested[1])
	assert.Equal(t, float64(5), nested[2])
}

func TestJSONTextValidInput(t *testing.T) {
	out := JSONText(`{"ip":{"asname":"Evil\u0000Corp","ascountry":"US\u0016"}}`)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	ip := parsed["ip"].(map[string]any)
	assert.Equal(t, "EvilCorp", ip["asname"])
	assert.Equal(t, "US", ip["ascountry"])
	assert.True(t, IsSafeForStore(out))
}

func TestJSONTextRepairsBrokenInput(t *testing.T) {
	// Trailing comma plus unbalanced brace.
	out := JSONText(`{"urls":[{"tags":["malware",]}`)
	assert.True(t, ValidJSON([]byte(out)))
}

func TestJSONTextHopelessInputDegradesToString(t *testing.T) {
	out := JSONText("not json at all \x00{{{")
	assert.NotContains(t, out, "\x00")
	assert.True(t, IsSafeForStore(out))
}

func TestMarshalCleanRoundTrip(t *testing.T) {
	payload, err := MarshalClean(map[string]any{"k": "v\x00"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(payload))
}

func TestFilenameTraversalAndNull(t *testing.T) {
	assert.Equal(t, "etcpasswd", Filename("../etc/\x00passwd"))
}

func TestFilenameStripsSeparators(t *testing.T) {
	// Separators without a traversal prefix must not survive either.
	assert.Equal(t, "etcpasswd", Filename("/etc/passwd"))
	assert.Equal(t, "dirsubfile.bin", Filename(`dir\sub\file.bin`))
	assert.Equal(t, "mal.exe", Filename("mal.exe"))
}

func TestFilenameNestedTraversal(t *testing.T) {
	// Removing one layer must not reveal another.
	assert.Equal(t, "x", Filename("..././x"))
	assert.Equal(t, "evil", Filename(`..\..\evil`))
}

func TestFilenameTruncates(t *testing.T) {
	long := strings.Repeat("a", MaxFilenameLength+100)
	assert.Len(t, Filename(long), MaxFilenameLength)
}

func TestURLTrimAndTruncate(t *testing.T) {
	assert.Equal(t, "http://example.com/a", URL("  http://example.com/\x00a\n"))
	long := "http://example.com/" + strings.Repeat("b", MaxURLLength)
	assert.Len(t, URL(long), MaxURLLength)
}

func TestIsSafeForStore(t *testing.T) {
	assert.True(t, IsSafeForStore(`{"a":"b"}`))
	assert.False(t, IsSafeForStore("raw\x00null"))
	assert.False(t, IsSafeForStore("{\"a\":\"b\x16c\"}"))
	assert.False(t, IsSafeForStore(`{"a":"b\u0000c"}`))
	assert.False(t, IsSafeForStore(`{"a":"b\u009Fc"}`))
	// Escapes denoting safe code points stay safe.
	assert.True(t, IsSafeForStore(`{"a":"b\u0041c"}`))
	assert.True(t, IsSafeForStore(`{"a":"b\u000Ac"}`))
}

func TestValidJSON(t *testing.T) {
	assert.True(t, ValidJSON([]byte(` {"a": 1} `)))
	assert.False(t, ValidJSON([]byte(`{"a": 1`)))
}
