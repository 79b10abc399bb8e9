package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Row is one record returned by the graph executor. Field order is the
// order the query returned them in and is preserved through JSON.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow builds a row from parallel key and value slices, the shape a
// driver record exposes. Duplicate keys keep their last value.
func NewRow(keys []string, values []any) Row {
	r := Row{values: make(map[string]any, len(keys))}
	for i, k := range keys {
		var v any
		if i < len(values) {
			v = values[i]
		}
		r.set(k, v)
	}
	return r
}

// RowFromMap builds a row from a map. Keys are sorted since map order is lost.
func RowFromMap(m map[string]any) Row {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	r := Row{keys: keys, values: make(map[string]any, len(m))}
	for k, v := range m {
		r.values[k] = v
	}
	return r
}

func (r *Row) set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Keys returns the field names in order.
func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the raw value stored under key.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Len returns the number of fields.
func (r Row) Len() int { return len(r.keys) }

// Map returns a shallow copy of the row's fields.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON writes the row as a JSON object in field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping field order. Numbers decode
// as json.Number and are coerced when the row is normalized.
func (r *Row) UnmarshalJSON(data []byte) error {
	*r = Row{values: map[string]any{}}
	return decodeObject(data, func(key string, dec *json.Decoder) error {
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.set(key, v)
		return nil
	})
}

// decodeObject walks the top-level members of a JSON object in order.
func decodeObject(data []byte, member func(key string, dec *json.Decoder) error) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("normalize: expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("normalize: expected object key, got %v", tok)
		}
		if err := member(key, dec); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	_, err = dec.Token()
	return err
}
