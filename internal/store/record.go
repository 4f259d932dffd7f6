package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one JSON document. Numbers read back from a store are
// json.Number values.
type Record map[string]any

// ID returns the record id or "".
func (r Record) ID() string {
	return r.String(IDField)
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the text value of key, or "" when absent or not text.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns the integer value of key.
func (r Record) Int(key string) (int, error) {
	switch v := r[key].(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return int(i), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("field %s: %v is not an integer", key, v)
		}
		return int(v), nil
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return i, nil
	case nil:
		return 0, fmt.Errorf("field %s: missing", key)
	default:
		return 0, fmt.Errorf("field %s: unexpected type %T", key, v)
	}
}

// Decimal returns the numeric value of key.
func (r Record) Decimal(key string) (decimal.Decimal, error) {
	switch v := r[key].(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	case nil:
		return decimal.Zero, fmt.Errorf("field %s: missing", key)
	default:
		return decimal.Zero, fmt.Errorf("field %s: unexpected type %T", key, v)
	}
}

// Time returns the RFC 3339 timestamp value of key. Absent keys yield the
// zero time.
func (r Record) Time(key string) (time.Time, error) {
	s := r.String(key)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Normalize round-trips the record through JSON so that every value has
// the shape a store would hand back.
func Normalize(r Record) (Record, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return DecodeRecord(b)
}

// DecodeRecord parses a JSON document keeping numbers as json.Number.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out Record
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}

// Canonical returns v as it would read back from a stored document: named
// string types become string, numbers become json.Number.
func Canonical(v any) any {
	switch v.(type) {
	case nil, string, json.Number, bool:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}
