// Package sanitize provides redaction of sensitive data from log context
// values and messages before they leave the process.
package sanitize

import (
	"reflect"
	"strings"
)

// RedactionMarker replaces values whose key matches a sensitive field.
const RedactionMarker = "[REDACTED]"

// DefaultSensitiveFields are the substrings matched (case-insensitively)
// against context keys when no custom list is configured.
var DefaultSensitiveFields = []string{
	"password", "token", "secret", "key", "authorization", "ssn", "credit_card",
}

// Sanitizer redacts sensitive fields from arbitrarily nested values.
// The zero value is not usable; construct with New.
type Sanitizer struct {
	fields []string
}

// New creates a Sanitizer matching the given sensitive field substrings.
// An empty list falls back to DefaultSensitiveFields.
func New(fields []string) *Sanitizer {
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}
	lowered := make([]string, len(fields))
	for i, f := range fields {
		lowered[i] = strings.ToLower(f)
	}
	return &Sanitizer{fields: lowered}
}

// Sanitize walks maps and slices recursively and replaces any value whose
// key contains a sensitive substring with RedactionMarker. The input is not
// modified; a sanitized copy is returned. Cyclic structures terminate via a
// seen-set keyed on reference identity, degrading to partial sanitization
// instead of recursing forever. Sanitize never panics; if the walk does, the
// caller gets the redaction marker rather than nil.
func (s *Sanitizer) Sanitize(value any) (result any) {
	defer func() {
		// Malformed input must never propagate to the producer.
		if r := recover(); r != nil {
			result = RedactionMarker
		}
	}()
	seen := make(map[uintptr]bool)
	return s.sanitizeValue(value, seen)
}

// IsSensitive reports whether a key matches one of the configured substrings.
func (s *Sanitizer) IsSensitive(key string) bool {
	lowered := strings.ToLower(key)
	for _, field := range s.fields {
		if strings.Contains(lowered, field) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) sanitizeValue(value any, seen map[uintptr]bool) any {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case map[string]any:
		if ptr := pointerOf(v); ptr != 0 {
			if seen[ptr] {
				return RedactionMarker
			}
			seen[ptr] = true
		}
		out := make(map[string]any, len(v))
		for key, val := range v {
			if s.IsSensitive(key) {
				out[key] = RedactionMarker
				continue
			}
			out[key] = s.sanitizeValue(val, seen)
		}
		return out

	case []any:
		if ptr := pointerOf(v); ptr != 0 {
			if seen[ptr] {
				return RedactionMarker
			}
			seen[ptr] = true
		}
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = s.sanitizeValue(val, seen)
		}
		return out

	default:
		return s.sanitizeReflected(value, seen)
	}
}

// sanitizeReflected handles map and slice types other than the common
// map[string]any / []any shapes. Scalars pass through unchanged.
func (s *Sanitizer) sanitizeReflected(value any, seen map[uintptr]bool) any {
	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		if rv.IsNil() {
			return value
		}
		if seen[rv.Pointer()] {
			return RedactionMarker
		}
		seen[rv.Pointer()] = true
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if s.IsSensitive(key) {
				out[key] = RedactionMarker
				continue
			}
			out[key] = s.sanitizeValue(iter.Value().Interface(), seen)
		}
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return value
		}
		if seen[rv.Pointer()] {
			return RedactionMarker
		}
		seen[rv.Pointer()] = true
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = s.sanitizeValue(rv.Index(i).Interface(), seen)
		}
		return out

	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		if seen[rv.Pointer()] {
			return RedactionMarker
		}
		seen[rv.Pointer()] = true
		return s.sanitizeValue(rv.Elem().Interface(), seen)

	default:
		return value
	}
}

func pointerOf(v any) uintptr {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if rv.IsNil() {
			return 0
		}
		return rv.Pointer()
	default:
		return 0
	}
}
