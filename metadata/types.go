package metadata

import (
	"errors"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"unique"
)

// ErrInvalidValue is returned for metadata values of unsupported types.
var ErrInvalidValue = errors.New("invalid metadata value")

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBool represents a boolean value.
	KindBool
	// KindArray represents an array value.
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a small typed value used for metadata documents and filters.
// Strings are interned, so equality of string values is a handle compare.
type Value struct {
	Kind Kind
	I64  int64
	F64  float64
	s    unique.Handle[string]
	B    bool
	A    []Value
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, s: unique.Make(v)} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Array returns an array Value.
func Array(v []Value) Value { return Value{Kind: KindArray, A: v} }

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the numeric value of an int or float.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I64), true
	case KindFloat:
		return v.F64, true
	default:
		return 0, false
	}
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.s.Value(), true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsArray returns the array value if Kind is KindArray.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	return v.A, true
}

// Any converts v back to a plain Go value.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.I64
	case KindFloat:
		return v.F64
	case KindString:
		return v.s.Value()
	case KindBool:
		return v.B
	case KindArray:
		out := make([]any, len(v.A))
		for i := range v.A {
			out[i] = v.A[i].Any()
		}
		return out
	default:
		return nil
	}
}

// Key returns a stable string representation for use in maps.
// Integral floats share the int key so that 1 and 1.0 index together.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "n:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		if i, ok := integral(v.F64); ok {
			return "n:" + strconv.FormatInt(i, 10)
		}
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.s.Value()
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindArray:
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	default:
		return "invalid"
	}
}

func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Equal reports whether two values are equal under filter semantics.
func (v Value) Equal(o Value) bool {
	return compareEqual(v, o)
}

func (v Value) clone() Value {
	if v.Kind != KindArray || len(v.A) == 0 {
		return v
	}
	arr := make([]Value, len(v.A))
	for i := range v.A {
		arr[i] = v.A[i].clone()
	}
	v.A = arr
	return v
}

// Document is a typed metadata document.
type Document map[string]Value

// Clone creates a deep copy of the document, including nested arrays.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = v.clone()
	}
	return clone
}

// Keys returns the document keys in sorted order.
func (d Document) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

// ToMap converts the document into plain Go values.
func (d Document) ToMap() map[string]any {
	if d == nil {
		return nil
	}
	m := make(map[string]any, len(d))
	for k, v := range d {
		m[k] = v.Any()
	}
	return m
}

// Equal reports whether both documents hold the same keys and equal values.
func (d Document) Equal(o Document) bool {
	if len(d) != len(o) {
		return false
	}
	for k, v := range d {
		ov, ok := o[k]
		if !ok || !compareEqual(v, ov) {
			return false
		}
	}
	return true
}
