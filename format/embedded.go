package format

import "strings"

// FormatMessage formats a free-text message for the event log. A message that is
// entirely JSON is formatted as a whole; otherwise embedded JSON spans are formatted
// in place.
func FormatMessage(text string) string {
	if IsJSONString(text) {
		return FormatJSON(text)
	}
	return FormatEmbeddedJSON(text)
}

// FormatEmbeddedJSON replaces every balanced, valid JSON object or array inside text
// with its formatted form. Surrounding prose is copied unchanged, and a bracket that
// does not open a valid span is copied literally.
func FormatEmbeddedJSON(text string) string {
	var out strings.Builder
	out.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		if c == '{' || c == '[' {
			if end, ok := balancedSpan(text, i); ok && IsJSONString(text[i:end]) {
				out.WriteString(FormatJSON(text[i:end]))
				i = end
				continue
			}
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

// balancedSpan returns the exclusive end of the bracket span opening at start.
// Brackets inside double-quoted runs do not count and a backslash escapes the
// following byte.
func balancedSpan(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for j := start; j < len(text); j++ {
		c := text[j]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return j + 1, true
			}
		}
	}
	return 0, false
}
