package metadata

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// MarshalJSON encodes v as a plain JSON scalar or array. Floats always carry
// a fraction or exponent so that they decode back as floats.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(b []byte) ([]byte, error) {
	switch v.Kind {
	case KindNull, KindInvalid:
		return append(b, "null"...), nil
	case KindInt:
		return strconv.AppendInt(b, v.I64, 10), nil
	case KindFloat:
		if math.IsNaN(v.F64) || math.IsInf(v.F64, 0) {
			return nil, fmt.Errorf("%w: non-finite float %v", ErrInvalidValue, v.F64)
		}
		s := strconv.FormatFloat(v.F64, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return append(b, s...), nil
	case KindString:
		enc, err := json.Marshal(v.s.Value())
		if err != nil {
			return nil, err
		}
		return append(b, enc...), nil
	case KindBool:
		return strconv.AppendBool(b, v.B), nil
	case KindArray:
		b = append(b, '[')
		for i := range v.A {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = v.A[i].appendJSON(b); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidValue, v.Kind)
	}
}

// UnmarshalJSON decodes a JSON scalar or array. Numbers without a fraction or
// exponent become ints.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func fromNumber(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s", ErrInvalidValue, s)
	}
	return Float(f), nil
}
