package recordstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecstore/distance"
)

var (
	// ErrInvalidVector is returned for empty vectors and vectors with NaN or
	// Inf components.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrInvalidID is returned for empty or oversized ids.
	ErrInvalidID = errors.New("invalid id")

	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("record not found")
)

// DimensionError reports a vector whose length differs from the store's.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Limits bounds what the store accepts. Zero fields are unlimited.
type Limits struct {
	MaxDimension int
	MaxIDLength  int
}

// DefaultLimits are generous bounds that catch obvious mistakes.
var DefaultLimits = Limits{
	MaxDimension: 65536,
	MaxIDLength:  1024,
}

// ValidateVector checks v against the store dimension and the limits. It
// never mutates the store.
func (s *Store) ValidateVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	if s.dim > 0 && len(v) != s.dim {
		return &DimensionError{Expected: s.dim, Actual: len(v)}
	}
	if s.limits.MaxDimension > 0 && len(v) > s.limits.MaxDimension {
		return fmt.Errorf("%w: dimension %d exceeds limit %d", ErrInvalidVector, len(v), s.limits.MaxDimension)
	}
	if !distance.IsFinite(v) {
		return fmt.Errorf("%w: non-finite component", ErrInvalidVector)
	}
	return nil
}

// ValidateQuery checks a search vector. An empty store accepts any length.
func (s *Store) ValidateQuery(q []float32) error {
	if s.dim == 0 {
		return nil
	}
	if len(q) != s.dim {
		return &DimensionError{Expected: s.dim, Actual: len(q)}
	}
	if !distance.IsFinite(q) {
		return fmt.Errorf("%w: non-finite component", ErrInvalidVector)
	}
	return nil
}

func (s *Store) validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if s.limits.MaxIDLength > 0 && len(id) > s.limits.MaxIDLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrInvalidID, len(id), s.limits.MaxIDLength)
	}
	return nil
}
