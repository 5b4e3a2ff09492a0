package record

import "time"

// Document is an open, schema-less payload: string keys, dynamically typed
// values (string, number, bool, nil, nested map, sequence). It marshals to
// JSON and BSON as-is.
type Document map[string]any

// Clone returns a shallow copy. Nested maps and slices are shared.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String returns the value at key if it is a non-empty string.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Number returns the value at key coerced to float64. JSON decoding yields
// float64, BSON decoding may yield int32/int64.
func (d Document) Number(key string) (float64, bool) {
	switch n := d[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Map returns the nested document at key.
func (d Document) Map(key string) (Document, bool) {
	switch m := d[key].(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}

// Slice returns the sequence at key, or nil if absent or not a sequence.
func (d Document) Slice(key string) []any {
	s, _ := d[key].([]any)
	return s
}

// Time returns the value at key if it is a timestamp.
func (d Document) Time(key string) (time.Time, bool) {
	switch t := d[key].(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
