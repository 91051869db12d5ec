package responsecache

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxSummaryStringRunes = 200
	maxSummaryValueRunes  = 50
	maxSummaryParts       = 3
	truncationMarker      = "..."
)

// summaryKeys are the object fields reported by Summarize, in order.
var summaryKeys = []string{"status", "result", "message", "error", "count", "total"}

// Summarize renders a short description of a tool response:
//
//   - strings over 200 characters are cut to 200 plus "..."
//   - objects list status, result, message, error, count and total when
//     present, then "<key>: N items" for array fields, at most three parts
//   - arrays report their length
//   - anything else is "Operation completed"
func Summarize(v Value) string {
	switch v.Kind() {
	case ValueString:
		s, _ := v.AsString()
		return truncateRunes(s, maxSummaryStringRunes)
	case ValueArray:
		return fmt.Sprintf("List with %d items", v.Len())
	case ValueObject:
		return summarizeObject(v)
	}
	return "Operation completed"
}

func summarizeObject(v Value) string {
	var parts []string
	seen := make(map[string]bool, len(summaryKeys))

	for _, key := range summaryKeys {
		field, ok := v.Field(key)
		if !ok {
			continue
		}
		seen[key] = true
		if field.Kind() == ValueArray {
			parts = append(parts, fmt.Sprintf("%s: %d items", key, field.Len()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", key, summaryScalar(field)))
	}

	for _, key := range v.Keys() {
		if seen[key] {
			continue
		}
		if field, _ := v.Field(key); field.Kind() == ValueArray {
			parts = append(parts, fmt.Sprintf("%s: %d items", key, field.Len()))
		}
	}

	if len(parts) == 0 {
		return "Response received"
	}
	if len(parts) > maxSummaryParts {
		parts = parts[:maxSummaryParts]
	}
	return strings.Join(parts, "; ")
}

func summaryScalar(v Value) string {
	switch v.Kind() {
	case ValueString:
		s, _ := v.AsString()
		return truncateRunes(s, maxSummaryValueRunes)
	case ValueNumber:
		return v.NumberText()
	case ValueBool:
		b, _ := v.AsBool()
		return fmt.Sprintf("%t", b)
	case ValueNull:
		return "null"
	case ValueUnrepresentable:
		u, _ := v.Unrepresentable()
		return truncateRunes(u.StringRepr, maxSummaryValueRunes)
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return v.Kind().String()
	}
	return truncateRunes(string(data), maxSummaryValueRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + truncationMarker
}
