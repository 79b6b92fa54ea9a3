package core

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// NormalizeID converts a caller supplied identifier into the canonical key string
// used for lookups.
//
// Single keys are stringified. Composite keys accept a slice of components or its
// JSON encoded form and are canonicalised to a JSON array, so ["1", 2] passed as a
// slice and the string `["1",2]` name the same record.
func NormalizeID(m *Model, id any) (string, error) {
	if id == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingPrimaryKey, m.Entity)
	}
	if !m.Composite() {
		if parts, ok := toSlice(id); ok {
			if len(parts) != 1 {
				return "", fmt.Errorf("%w: %s expects a single key, got %d parts", ErrMissingPrimaryKey, m.Entity, len(parts))
			}
			id = parts[0]
		}
		s := scalarString(id)
		if s == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingPrimaryKey, m.Entity)
		}
		return s, nil
	}

	var parts []any
	switch v := id.(type) {
	case string:
		decoded, err := decodeKey(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s composite key %q: %v", ErrMissingPrimaryKey, m.Entity, v, err)
		}
		parts = decoded
	default:
		s, ok := toSlice(id)
		if !ok {
			return "", fmt.Errorf("%w: %s requires a composite key %v", ErrMissingPrimaryKey, m.Entity, m.PrimaryKey)
		}
		parts = s
	}
	return encodeKey(m, parts)
}

// KeyOf derives the canonical key of a record.
func KeyOf(m *Model, rec Record) (string, error) {
	if !m.Composite() {
		return NormalizeID(m, rec[m.PrimaryKey[0]])
	}
	parts := make([]any, len(m.PrimaryKey))
	for i, field := range m.PrimaryKey {
		v, ok := rec[field]
		if !ok || v == nil {
			return "", fmt.Errorf("%w: %s.%s", ErrMissingPrimaryKey, m.Entity, field)
		}
		parts[i] = v
	}
	return encodeKey(m, parts)
}

// KeyParts splits a canonical key into its components, in primary key order.
func KeyParts(m *Model, key string) ([]any, error) {
	if !m.Composite() {
		return []any{key}, nil
	}
	parts, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	if len(parts) != len(m.PrimaryKey) {
		return nil, fmt.Errorf("%w: %s expects %d key parts", ErrMissingPrimaryKey, m.Entity, len(m.PrimaryKey))
	}
	return parts, nil
}

// AssignKey writes the components of key into rec when they are absent.
func AssignKey(m *Model, rec Record, key string) error {
	parts, err := KeyParts(m, key)
	if err != nil {
		return err
	}
	for i, field := range m.PrimaryKey {
		if _, ok := rec[field]; !ok {
			rec[field] = parts[i]
		}
	}
	return nil
}

func encodeKey(m *Model, parts []any) (string, error) {
	if len(parts) != len(m.PrimaryKey) {
		return "", fmt.Errorf("%w: %s expects %d key parts, got %d", ErrMissingPrimaryKey, m.Entity, len(m.PrimaryKey), len(parts))
	}
	canonical := make([]any, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case json.Number:
			canonical[i] = v
		case string:
			canonical[i] = v
		case nil:
			return "", fmt.Errorf("%w: %s.%s", ErrMissingPrimaryKey, m.Entity, m.PrimaryKey[i])
		default:
			if n, ok := toNumber(v); ok {
				canonical[i] = json.Number(strconv.FormatFloat(n, 'f', -1, 64))
			} else {
				canonical[i] = fmt.Sprint(v)
			}
		}
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeKey(s string) ([]any, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return nil, fmt.Errorf("not a JSON array")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var parts []any
	if err := dec.Decode(&parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// Stringify renders a scalar key component the way canonical keys do, so 1,
// 1.0 and "1" all read "1".
func Stringify(v any) string {
	return scalarString(v)
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	if n, ok := toNumber(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
