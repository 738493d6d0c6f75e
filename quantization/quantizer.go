package quantization

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/internal/f16"
)

var (
	// ErrUnsupportedBits is returned for bit widths other than 32, 16 and 8.
	ErrUnsupportedBits = errors.New("unsupported bit width")

	// ErrNoTrainingData is returned when a quantizer is trained on nothing.
	ErrNoTrainingData = errors.New("no vectors provided for training")
)

// Bits is the per-component storage width of a vector representation.
type Bits int

const (
	Bits32 Bits = 32
	Bits16 Bits = 16
	Bits8  Bits = 8
)

// ParseBits validates n as a supported width.
func ParseBits(n int) (Bits, error) {
	switch b := Bits(n); b {
	case Bits32, Bits16, Bits8:
		return b, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBits, n)
	}
}

// BytesPerDimension returns the encoded size of one component.
func (b Bits) BytesPerDimension() int {
	return int(b) / 8
}

// CompressionRatio is float32 bytes over encoded bytes.
func (b Bits) CompressionRatio() float64 {
	if b <= 0 {
		return 1
	}
	return 32 / float64(b)
}

func (b Bits) String() string {
	if b == Bits32 {
		return "float32"
	}
	return fmt.Sprintf("%d-bit", int(b))
}

// Quantizer encodes float32 vectors into a fixed-width byte representation.
type Quantizer interface {
	// Bits returns the encoded component width.
	Bits() Bits

	// EncodeTo writes the code for v into dst (len(dst) >= len(v)*bytes).
	EncodeTo(dst []byte, v []float32)

	// DecodeTo reconstructs the approximation stored in code.
	DecodeTo(dst []float32, code []byte)

	// Dot returns the dot product of q with the decoded vector in code.
	Dot(code []byte, q []float32) float32
}

// HalfQuantizer stores components as IEEE-754 binary16.
type HalfQuantizer struct{}

func (HalfQuantizer) Bits() Bits { return Bits16 }

func (HalfQuantizer) EncodeTo(dst []byte, v []float32) { f16.PutFloat32s(dst, v) }

func (HalfQuantizer) DecodeTo(dst []float32, code []byte) { f16.Float32s(dst, code) }

func (HalfQuantizer) Dot(code []byte, q []float32) float32 {
	var s float32
	for i, x := range q {
		s += x * f16.At(code, i)
	}
	return s
}

// ScalarQuantizer implements 8-bit scalar quantization.
// Every component is mapped linearly from the trained [min, max] range to
// [0, 255]; values outside the range clamp to the nearest end.
type ScalarQuantizer struct {
	min float32
	max float32
}

// NewScalarQuantizer creates an untrained quantizer over [0, 1].
func NewScalarQuantizer() *ScalarQuantizer {
	return &ScalarQuantizer{min: 0, max: 1}
}

// NewScalarQuantizerRange creates a quantizer with explicit bounds, as
// restored from a snapshot.
func NewScalarQuantizerRange(lo, hi float32) (*ScalarQuantizer, error) {
	if !(lo < hi) || math.IsInf(float64(lo), 0) || math.IsInf(float64(hi), 0) {
		return nil, fmt.Errorf("invalid scalar quantizer range [%g, %g]", lo, hi)
	}
	return &ScalarQuantizer{min: lo, max: hi}, nil
}

// Train calibrates the quantizer to the global min/max of vectors.
func (sq *ScalarQuantizer) Train(vectors [][]float32) error {
	return sq.TrainSeq(slices.Values(vectors))
}

// TrainSeq is Train over a sequence, so callers can stream rows without
// materializing them.
func (sq *ScalarQuantizer) TrainSeq(vectors iter.Seq[[]float32]) error {
	lo := float32(math.MaxFloat32)
	hi := float32(-math.MaxFloat32)
	seen := false

	for vec := range vectors {
		for _, val := range vec {
			seen = true
			lo = min(lo, val)
			hi = max(hi, val)
		}
	}

	if !seen {
		return ErrNoTrainingData
	}

	// All values equal: widen so the scale stays finite.
	if lo == hi {
		hi = lo + 1
	}

	sq.min, sq.max = lo, hi
	return nil
}

func (sq *ScalarQuantizer) Bits() Bits { return Bits8 }

// Widen returns a quantizer whose range also covers every component of v.
// It reports false, and returns sq, when v already lies inside the range.
// sq itself is never modified, since encoded rows may still refer to it.
func (sq *ScalarQuantizer) Widen(v []float32) (*ScalarQuantizer, bool) {
	lo, hi := sq.min, sq.max
	for _, x := range v {
		lo, hi = min(lo, x), max(hi, x)
	}
	if lo == sq.min && hi == sq.max {
		return sq, false
	}
	return &ScalarQuantizer{min: lo, max: hi}, true
}

func (sq *ScalarQuantizer) EncodeTo(dst []byte, v []float32) {
	scale := 255 / (sq.max - sq.min)
	for i, val := range v {
		val = min(max(val, sq.min), sq.max)
		dst[i] = uint8((val-sq.min)*scale + 0.5)
	}
}

func (sq *ScalarQuantizer) DecodeTo(dst []float32, code []byte) {
	step := sq.step()
	for i := range dst {
		dst[i] = float32(code[i])*step + sq.min
	}
}

// Dot expands sum(q_i * (c_i*step + min)) as step*sum(q_i*c_i) + min*sum(q).
func (sq *ScalarQuantizer) Dot(code []byte, q []float32) float32 {
	var qc float32
	for i, x := range q {
		qc += x * float32(code[i])
	}
	return sq.step()*qc + sq.min*distance.Sum(q)
}

func (sq *ScalarQuantizer) step() float32 {
	return (sq.max - sq.min) / 255
}

// Min returns the lower bound of the quantization range.
func (sq *ScalarQuantizer) Min() float32 { return sq.min }

// Max returns the upper bound of the quantization range.
func (sq *ScalarQuantizer) Max() float32 { return sq.max }

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [min:float32][max:float32]
func (sq *ScalarQuantizer) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(sq.min))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(sq.max))
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sq *ScalarQuantizer) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return errors.New("invalid scalar quantizer binary length")
	}
	lo := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	hi := math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	restored, err := NewScalarQuantizerRange(lo, hi)
	if err != nil {
		return err
	}
	*sq = *restored
	return nil
}

