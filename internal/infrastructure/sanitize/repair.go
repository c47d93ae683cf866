package sanitize

import (
	"regexp"
	"strings"
)

// Providers occasionally return truncated or hand-mangled JSON bodies. The
// repair heuristics below are applied in sequence, each idempotent, before
// the text is re-parsed. They are best-effort: output that still fails to
// parse falls back to strict string sanitization in JSONText.

var (
	// A line shaped like `"key": "value..."` with an optional trailing comma.
	keyValueLine = regexp.MustCompile(`^(\s*"(?:[^"\\]|\\.)*"\s*:\s*")(.*)("\s*,?\s*)$`)

	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// Repair applies the JSON repair heuristics in order: escape unescaped
// quotes inside string values, remove trailing commas, close unclosed string
// literals, balance braces and brackets.
func Repair(text string) string {
	text = escapeInnerQuotes(text)
	text = removeTrailingCommas(text)
	text = closeUnclosedString(text)
	return balanceBrackets(text)
}

// escapeInnerQuotes handles lines of the form
// `"key": "value with "inner" quotes"` by escaping the quotes embedded in
// the value.
func escapeInnerQuotes(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := keyValueLine.FindStringSubmatch(line)
		if m == nil || !strings.Contains(m[2], `"`) {
			continue
		}
		lines[i] = m[1] + escapeUnescaped(m[2]) + m[3]
	}
	return strings.Join(lines, "\n")
}

// escapeUnescaped escapes every quote in s not already preceded by a
// backslash.
func escapeUnescaped(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' && !escaped {
			b.WriteString(`\"`)
			continue
		}
		escaped = c == '\\' && !escaped
		b.WriteByte(c)
	}
	return b.String()
}

func removeTrailingCommas(text string) string {
	for {
		next := trailingComma.ReplaceAllString(text, "$1")
		if next == text {
			return text
		}
		text = next
	}
}

// closeUnclosedString appends a closing quote when the text ends inside a
// string literal.
func closeUnclosedString(text string) string {
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		}
	}
	if inString {
		return text + `"`
	}
	return text
}

// balanceBrackets appends missing closers for any braces or brackets still
// open at end of input, in open order.
func balanceBrackets(text string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		text += string(stack[i])
	}
	return text
}
