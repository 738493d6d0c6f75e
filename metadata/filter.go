package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilter is returned by Validate for malformed filters.
var ErrInvalidFilter = errors.New("invalid filter")

// Operator represents a comparison operator for filtering.
type Operator string

const (
	// OpEqual represents the equality operator.
	OpEqual Operator = "eq"
	// OpNotEqual represents the inequality operator.
	OpNotEqual Operator = "ne"
	// OpGreaterThan represents the greater than operator.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual represents the greater than or equal operator.
	OpGreaterEqual Operator = "gte"
	// OpLessThan represents the less than operator.
	OpLessThan Operator = "lt"
	// OpLessEqual represents the less than or equal operator.
	OpLessEqual Operator = "lte"
	// OpIn represents the in list operator.
	OpIn Operator = "in"
	// OpContains represents the contains substring operator.
	OpContains Operator = "contains"
)

// Filter represents a single metadata filter condition.
type Filter struct {
	Key      string
	Operator Operator
	Value    Value
}

// Validate checks that the operator is known and the operand fits it.
func (f *Filter) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidFilter)
	}
	switch f.Operator {
	case OpEqual, OpNotEqual:
		if f.Value.Kind == KindInvalid {
			return fmt.Errorf("%w: %s on %q needs a value", ErrInvalidFilter, f.Operator, f.Key)
		}
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		if _, ok := f.Value.AsFloat64(); !ok {
			return fmt.Errorf("%w: %s on %q needs a number, got %s", ErrInvalidFilter, f.Operator, f.Key, f.Value.Kind)
		}
	case OpIn:
		if f.Value.Kind != KindArray {
			return fmt.Errorf("%w: in on %q needs an array, got %s", ErrInvalidFilter, f.Key, f.Value.Kind)
		}
	case OpContains:
		if f.Value.Kind != KindString {
			return fmt.Errorf("%w: contains on %q needs a string, got %s", ErrInvalidFilter, f.Key, f.Value.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Operator)
	}
	return nil
}

// Matches checks if the provided metadata matches this filter.
// A missing key never matches, whatever the operator.
func (f *Filter) Matches(doc Document) bool {
	value, exists := doc[f.Key]
	if !exists {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	case OpNotEqual:
		return !compareEqual(value, f.Value)
	case OpGreaterThan:
		c, ok := compareNumbers(value, f.Value)
		return ok && c > 0
	case OpGreaterEqual:
		c, ok := compareNumbers(value, f.Value)
		return ok && c >= 0
	case OpLessThan:
		c, ok := compareNumbers(value, f.Value)
		return ok && c < 0
	case OpLessEqual:
		c, ok := compareNumbers(value, f.Value)
		return ok && c <= 0
	case OpIn:
		return compareIn(value, f.Value)
	case OpContains:
		return compareContains(value, f.Value)
	default:
		return false
	}
}

// FilterSet represents a set of filters that must all match (AND logic).
type FilterSet struct {
	Filters []Filter
}

// NewFilterSet creates a new filter set.
func NewFilterSet(filters ...Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// Equals builds an equality filter set from a document; every pair must match.
func Equals(doc Document) *FilterSet {
	fs := &FilterSet{Filters: make([]Filter, 0, len(doc))}
	for _, k := range doc.Keys() {
		fs.Filters = append(fs.Filters, Filter{Key: k, Operator: OpEqual, Value: doc[k]})
	}
	return fs
}

// Validate validates every filter in the set.
func (fs *FilterSet) Validate() error {
	if fs == nil {
		return nil
	}
	for i := range fs.Filters {
		if err := fs.Filters[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches checks if the provided metadata matches all filters in the set.
func (fs *FilterSet) Matches(doc Document) bool {
	if fs == nil {
		return true
	}
	for i := range fs.Filters {
		if !fs.Filters[i].Matches(doc) {
			return false
		}
	}
	return true
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull || b.Kind == KindNull {
		return a.Kind == b.Kind
	}

	if isNumber(a) && isNumber(b) {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		af, _ := a.AsFloat64()
		bf, _ := b.AsFloat64()
		return af == bf
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.s == b.s
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareNumbers(a, b Value) (int, bool) {
	af, ok := a.AsFloat64()
	if !ok {
		return 0, false
	}
	bf, ok := b.AsFloat64()
	if !ok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func compareIn(a, b Value) bool {
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareContains(a, b Value) bool {
	if b.Kind != KindString {
		return false
	}
	switch a.Kind {
	case KindString:
		return strings.Contains(a.s.Value(), b.s.Value())
	case KindArray:
		for _, item := range a.A {
			if compareEqual(item, b) {
				return true
			}
		}
	}
	return false
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}
