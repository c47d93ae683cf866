// Package sanitize strips control code points from strings and JSON trees so
// every enrichment payload is safe to embed in a JSON column of a relational
// store. The danger set is U+0000-U+0008, U+000B-U+000C, U+000E-U+001F and
// U+007F-U+009F; tab, newline, carriage return and space are safe whitespace.
package sanitize

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Options controls sanitize behavior for String.
type Options struct {
	Strict             bool   // remove all control whitespace too
	PreserveWhitespace bool   // keep \t \n \r (ignored when Strict)
	Replacement        string // substituted for each removed code point
}

// MaxFilenameLength bounds sanitized filenames, in code units.
const MaxFilenameLength = 512

// MaxURLLength bounds sanitized URLs, in code units.
const MaxURLLength = 1024

// isDanger reports whether r falls in the C0/C1 danger set. Safe whitespace
// (\t, \n, \r) is not part of the set.
func isDanger(r rune) bool {
	switch {
	case r <= 0x08:
		return r >= 0
	case r == 0x0B || r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r >= 0x7F && r <= 0x9F:
		return true
	}
	return false
}

// String removes control code points from s per the given options. Invalid
// UTF-8 sequences are dropped so the result is always valid UTF-8. The
// function never fails and is idempotent.
func String(s string, opts Options) string {
	var b strings.Builder
	b.Grow(len(s))

	for i, r := range s {
		if r == utf8.RuneError {
			// A RuneError of size one marks a broken byte sequence.
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				b.WriteString(opts.Replacement)
				continue
			}
		}

		if r == '\t' || r == '\n' || r == '\r' {
			if opts.Strict || !opts.PreserveWhitespace {
				b.WriteString(opts.Replacement)
				continue
			}
			b.WriteRune(r)
			continue
		}

		if isDanger(r) {
			b.WriteString(opts.Replacement)
			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// Clean removes the danger set from s while preserving safe whitespace.
// This is the canonical pre-storage form for string leaves.
func Clean(s string) string {
	return String(s, Options{PreserveWhitespace: true})
}

// JSONTree walks a decoded JSON value, sanitizing every string leaf (keys
// and values) and recursing into arrays and objects. Non-string primitives
// pass through unchanged. Idempotent.
func JSONTree(v any) any {
	switch val := v.(type) {
	case string:
		return Clean(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[Clean(k)] = JSONTree(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = JSONTree(item)
		}
		return out
	default:
		return v
	}
}

// JSONText parses text, sanitizes the tree and re-serializes it in compact
// form. Malformed input goes through the repair heuristics once; if it still
// cannot be parsed the text degrades to a strict-sanitized plain string.
// Never fails.
func JSONText(text string) string {
	if out, ok := sanitizeParsed(text); ok {
		return out
	}
	if out, ok := sanitizeParsed(Repair(text)); ok {
		return out
	}
	return String(text, Options{Strict: true})
}

func sanitizeParsed(text string) (string, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}

	buf, err := json.Marshal(JSONTree(v))
	if err != nil {
		return "", false
	}
	return string(buf), true
}

// MarshalClean sanitizes a decoded JSON value and marshals it compactly.
// This is the single write path to every cache tier.
func MarshalClean(v any) (json.RawMessage, error) {
	return json.Marshal(JSONTree(v))
}

// Filename strict-sanitizes s, strips path traversal sequences and path
// separators, and truncates to MaxFilenameLength code units. The result is
// a bare name that cannot escape the directory it is recorded under.
func Filename(s string) string {
	s = String(s, Options{Strict: true})
	for strings.Contains(s, "../") || strings.Contains(s, `..\`) {
		s = strings.ReplaceAll(s, "../", "")
		s = strings.ReplaceAll(s, `..\`, "")
	}
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, `\`, "")
	if len(s) > MaxFilenameLength {
		s = s[:MaxFilenameLength]
	}
	return s
}

// URL strict-sanitizes s, trims surrounding whitespace and truncates to
// MaxURLLength code units.
func URL(s string) string {
	s = strings.TrimSpace(String(s, Options{Strict: true}))
	if len(s) > MaxURLLength {
		s = s[:MaxURLLength]
	}
	return s
}

// IsSafeForStore reports whether text contains neither raw danger-set code
// points nor JSON \u escape sequences that denote them. Both checks are
// needed because the store may re-serialize JSON back to text.
func IsSafeForStore(text string) bool {
	for _, r := range text {
		if isDanger(r) {
			return false
		}
	}

	for i := 0; i+6 <= len(text); i++ {
		if text[i] != '\\' || (text[i+1] != 'u' && text[i+1] != 'U') {
			continue
		}
		if r, ok := parseHex4(text[i+2 : i+6]); ok && isDanger(r) {
			return false
		}
	}

	return true
}

func parseHex4(s string) (rune, bool) {
	if len(s) != 4 {
		return 0, false
	}
	var v rune
	for i := 0; i < 4; i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			v = v<<4 | rune(c-'0')
		case c >= 'a' && c <= 'f':
			v = v<<4 | rune(c-'a'+10)
		case c >= 'A' && c <= 'F':
			v = v<<4 | rune(c-'A'+10)
		default:
			return 0, false
		}
	}
	return v, true
}

// ValidJSON reports whether b parses as a complete JSON document.
func ValidJSON(b []byte) bool {
	return json.Valid(bytes.TrimSpace(b))
}
