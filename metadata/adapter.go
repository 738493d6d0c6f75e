package metadata

import (
	"fmt"
	"math"

	json "github.com/goccy/go-json"
)

type signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// FromAny converts a caller supplied Go value, or a value produced by a JSON
// decoder, into a typed Value. Unsigned values above math.MaxInt64 are
// rejected rather than wrapped.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return fromNumber(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case int:
		return fromSigned(x), nil
	case int8:
		return fromSigned(x), nil
	case int16:
		return fromSigned(x), nil
	case int32:
		return fromSigned(x), nil
	case int64:
		return fromSigned(x), nil
	case uint:
		return fromUnsigned(x)
	case uint8:
		return fromUnsigned(x)
	case uint16:
		return fromUnsigned(x)
	case uint32:
		return fromUnsigned(x)
	case uint64:
		return fromUnsigned(x)
	case []Value:
		return Array(x), nil
	case []string:
		return arrayOf(x, String), nil
	case []int:
		return arrayOf(x, fromSigned[int]), nil
	case []int64:
		return arrayOf(x, Int), nil
	case []float64:
		return arrayOf(x, Float), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, e := range x {
			item, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, item)
		}
		return Array(items), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
}

func fromSigned[T signed](x T) Value { return Int(int64(x)) }

func fromUnsigned[T unsigned](x T) (Value, error) {
	if uint64(x) > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: unsigned value %d overflows int64", ErrInvalidValue, uint64(x))
	}
	return Int(int64(x)), nil
}

func arrayOf[T any](xs []T, conv func(T) Value) Value {
	items := make([]Value, len(xs))
	for i, x := range xs {
		items[i] = conv(x)
	}
	return Array(items)
}

// DocumentFromAny converts a map[string]any document to a typed Document.
// A nil map yields a nil Document.
func DocumentFromAny(m map[string]any) (Document, error) {
	if m == nil {
		return nil, nil
	}
	doc := make(Document, len(m))
	for key, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		doc[key] = v
	}
	return doc, nil
}
