// Package value defines the closed payload value type carried by operations.
//
// Payloads are heterogeneous (reps are integers, weights are floats, notes
// are strings) and must round-trip through JSON without the integer/float
// distinction collapsing. Decoding therefore goes through json.Number rather
// than float64.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindMap
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable tagged-union payload element.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating-point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps an ordered list of values.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Map wraps a key/value map.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind reports the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer payload. Floats do not narrow to ints.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the numeric payload; integers widen losslessly.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsArray returns the array payload.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsMap returns the map payload.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Equal compares two values structurally. Int and Float never compare equal,
// even when numerically identical, because the kind itself is load-bearing.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for idx := range v.arr {
			if !v.arr[idx].Equal(other.arr[idx]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for key, val := range v.m {
			otherVal, ok := other.m[key]
			if !ok || !val.Equal(otherVal) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON encodes the value. Map keys are emitted in sorted order so the
// same payload always serializes to the same bytes.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for idx, item := range v.arr {
			if idx > 0 {
				buf.WriteByte(',')
			}
			encoded, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for key := range v.m {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for idx, key := range keys {
			if idx > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			encoded, err := v.m[key].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %s", v.kind)
	}
}

// UnmarshalJSON decodes a value, preserving the int/float distinction: a
// number literal without a fraction or exponent decodes as Int.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	decoded, err := fromDecoded(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func fromDecoded(raw interface{}) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(typed), nil
	case string:
		return String(typed), nil
	case json.Number:
		return fromNumber(typed)
	case []interface{}:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			decoded, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, decoded)
		}
		return Array(items...), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(typed))
		for key, item := range typed {
			decoded, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			m[key] = decoded
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON type %T", raw)
	}
}

func fromNumber(num json.Number) (Value, error) {
	literal := num.String()
	if !strings.ContainsAny(literal, ".eE") {
		parsed, err := num.Int64()
		if err == nil {
			return Int(parsed), nil
		}
		// Falls through for integers beyond int64 range.
	}
	parsed, err := num.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("unparseable number %q: %w", literal, err)
	}
	return Float(parsed), nil
}

// DecodeMap decodes a JSON object into a payload map.
func DecodeMap(data []byte) (map[string]Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var wrapper Value
	if err := wrapper.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	m, ok := wrapper.AsMap()
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", wrapper.Kind())
	}
	return m, nil
}

// EncodeMap serializes a payload map with sorted keys.
func EncodeMap(m map[string]Value) ([]byte, error) {
	return Map(m).MarshalJSON()
}
