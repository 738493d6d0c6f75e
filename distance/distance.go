package distance

import (
	"math"
	"slices"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
// Partial sums are kept in float64 so large finite components do not
// overflow before the final result.
func Dot(a, b []float32) float32 {
	b = b[:len(a)]

	var s0, s1, s2, s3 float64
	i := 0
	for ; i+4 <= len(a); i += 4 {
		s0 += float64(a[i]) * float64(b[i])
		s1 += float64(a[i+1]) * float64(b[i+1])
		s2 += float64(a[i+2]) * float64(b[i+2])
		s3 += float64(a[i+3]) * float64(b[i+3])
	}
	for ; i < len(a); i++ {
		s0 += float64(a[i]) * float64(b[i])
	}
	return float32((s0 + s1) + (s2 + s3))
}

// Sum returns the sum of all components of v.
func Sum(v []float32) float32 {
	var s float64
	for _, x := range v {
		s += float64(x)
	}
	return float32(s)
}

// Norm returns the L2 norm of v. The result is +Inf only when the true
// norm exceeds the float32 range.
func Norm(v []float32) float32 {
	return float32(norm64(v))
}

// norm64 never overflows for finite float32 input.
func norm64(v []float32) float64 {
	var ss float64
	for _, x := range v {
		ss += float64(x) * float64(x)
	}
	return math.Sqrt(ss)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm; v is left untouched in that case.
func NormalizeL2InPlace(v []float32) bool {
	n := norm64(v)
	if n == 0 {
		return false
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Cosine returns the cosine similarity of a and b.
// A zero vector on either side yields 0.
func Cosine(a, b []float32) float32 {
	return CosineFromParts(Dot(a, b), Norm(a), Norm(b))
}

// CosineFromParts combines a precomputed dot product and norms into a
// cosine similarity clamped to [-1, 1].
func CosineFromParts(dot, normA, normB float32) float32 {
	if normA == 0 || normB == 0 {
		return 0
	}
	s := float32(float64(dot) / (float64(normA) * float64(normB)))
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	case math.IsNaN(float64(s)):
		return 0
	}
	return s
}

// IsFinite reports whether every component of v is neither NaN nor Inf.
func IsFinite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}
