// Package format renders JSON-like values as indented, bracket-free text for display.
//
// Structure is carried by indentation alone: mapping entries print as "key: value",
// nested structures as "key:" followed by an indented block, and empty nested
// structures as a bare "key".
package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mbocsi/simbridge/proto"
)

// IndentSize is the number of spaces per nesting level.
const IndentSize = 4

// IsJSONString reports whether s, trimmed, starts with '{' or '[' and is valid JSON.
func IsJSONString(s string) bool {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") {
		return false
	}
	return json.Valid([]byte(t))
}

// FormatJSON formats a JSON document. Input that does not decode is returned unchanged.
func FormatJSON(s string) string {
	v, err := proto.DecodeValue([]byte(strings.TrimSpace(s)))
	if err != nil {
		return s
	}
	switch v.(type) {
	case proto.Object, []any:
		return FormatStructured(v, 0)
	}
	return scalarText(v)
}

// FormatValue renders a watched variable's value. Floating-point numbers get three
// decimals, integers print as-is, structures are formatted, and strings holding JSON
// are decoded and formatted.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		if proto.IsFloatNumber(t) {
			if f, err := t.Float64(); err == nil {
				return strconv.FormatFloat(f, 'f', 3, 64)
			}
		}
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', 3, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', 3, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case proto.Object, []any, map[string]any:
		return FormatStructured(t, 0)
	case string:
		if IsJSONString(t) {
			return FormatJSON(t)
		}
		return t
	}

	// Anything else goes through its JSON encoding so slices, maps and structs of
	// concrete types format like their decoded equivalents.
	if data, err := json.Marshal(v); err == nil && IsJSONString(string(data)) {
		return FormatJSON(string(data))
	}
	s := fmt.Sprint(v)
	if IsJSONString(s) {
		return FormatJSON(s)
	}
	return s
}

// FormatStructured renders a mapping or sequence at the given indentation level.
// Scalars render as their text at that level.
func FormatStructured(v any, indentLevel int) string {
	switch t := normalize(v).(type) {
	case proto.Object:
		return formatObject(t, indentLevel)
	case []any:
		return formatSequence(t, indentLevel)
	default:
		return indent(indentLevel) + scalarText(t)
	}
}

func formatObject(o proto.Object, level int) string {
	if len(o) == 0 {
		return ""
	}
	pad := indent(level)
	lines := make([]string, 0, len(o))
	for _, m := range o {
		switch val := normalize(m.Value).(type) {
		case proto.Object:
			if len(val) == 0 {
				lines = append(lines, pad+m.Key)
				continue
			}
			lines = append(lines, pad+m.Key+":", formatObject(val, level+1))
		case []any:
			if len(val) == 0 {
				lines = append(lines, pad+m.Key)
				continue
			}
			lines = append(lines, pad+m.Key+":", formatSequence(val, level+1))
		default:
			lines = append(lines, pad+m.Key+": "+scalarText(val))
		}
	}
	return joinNonEmpty(lines)
}

func formatSequence(seq []any, level int) string {
	if len(seq) == 0 {
		return ""
	}
	pad := indent(level)
	lines := make([]string, 0, len(seq))
	for _, item := range seq {
		switch val := normalize(item).(type) {
		case proto.Object:
			lines = append(lines, formatObject(val, level))
		case []any:
			lines = append(lines, formatSequence(val, level+1))
		default:
			lines = append(lines, pad+scalarText(val))
		}
	}
	return joinNonEmpty(lines)
}

// normalize turns plain Go maps into Objects with sorted keys; Go maps carry no order.
func normalize(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := make(proto.Object, 0, len(keys))
	for _, k := range keys {
		obj = append(obj, proto.Member{Key: k, Value: m[k]})
	}
	return obj
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func indent(level int) string {
	return strings.Repeat(" ", IndentSize*level)
}

func joinNonEmpty(lines []string) string {
	kept := lines[:0]
	for _, l := range lines {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
