// Package vectorstore holds the row-addressed vector column behind a record
// store.
//
// Rows are dense uint32 slots. A Columnar keeps either raw float32 values or
// quantized codes plus a cached L2 norm per row; the norm always describes the
// stored (possibly quantized) representation, so similarity computed from it
// is self-consistent.
//
// Thread safety: none. Callers synchronize.
package vectorstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/quantization"
)

var (
	// ErrWrongDimension is returned when a vector doesn't match the store dimension.
	ErrWrongDimension = errors.New("wrong vector dimension")

	// ErrWiderEncoding is returned when converting to an equal or wider width.
	ErrWiderEncoding = errors.New("target encoding is not narrower than current")
)

// Columnar is a contiguous vector column with fixed stride.
type Columnar struct {
	dim   int
	quant quantization.Quantizer // nil: raw float32

	f32   []float32 // rows when quant == nil
	codes []byte    // rows when quant != nil
	norms []float32

	scratch []float32
}

// New creates an uncompressed float32 column.
func New(dim int) *Columnar {
	return &Columnar{dim: dim}
}

// NewQuantized creates a column that encodes rows with q.
func NewQuantized(dim int, q quantization.Quantizer) *Columnar {
	return &Columnar{dim: dim, quant: q, scratch: make([]float32, dim)}
}

// Dimension returns the vector length of every row.
func (c *Columnar) Dimension() int { return c.dim }

// Bits returns the storage width of a component.
func (c *Columnar) Bits() quantization.Bits {
	if c.quant == nil {
		return quantization.Bits32
	}
	return c.quant.Bits()
}

// Quantizer returns the active encoder, or nil for float32 storage. An 8-bit
// column replaces its quantizer when a write falls outside the trained range.
func (c *Columnar) Quantizer() quantization.Quantizer { return c.quant }

// Len returns the number of rows, including rows the owner considers deleted.
func (c *Columnar) Len() int { return len(c.norms) }

// RowBytes is the encoded size of one row.
func (c *Columnar) RowBytes() int {
	return c.dim * c.Bits().BytesPerDimension()
}

// Append stores v in a new row and returns its slot.
func (c *Columnar) Append(v []float32) (uint32, error) {
	if len(v) != c.dim {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrWrongDimension, len(v), c.dim)
	}
	row := uint32(len(c.norms))
	if c.quant == nil {
		c.f32 = append(c.f32, v...)
	} else {
		c.fit(v)
		c.codes = append(c.codes, make([]byte, c.RowBytes())...)
		c.quant.EncodeTo(c.code(row), v)
	}
	c.norms = append(c.norms, c.computeNorm(row))
	return row, nil
}

// Set overwrites an existing row.
func (c *Columnar) Set(row uint32, v []float32) error {
	if len(v) != c.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongDimension, len(v), c.dim)
	}
	if int(row) >= len(c.norms) {
		return fmt.Errorf("row %d out of range", row)
	}
	if c.quant == nil {
		copy(c.f32[c.offset(row):], v)
	} else {
		c.fit(v)
		c.quant.EncodeTo(c.code(row), v)
	}
	c.norms[row] = c.computeNorm(row)
	return nil
}

// Vector decodes a row into dst (allocated when nil or short).
func (c *Columnar) Vector(row uint32, dst []float32) []float32 {
	if cap(dst) < c.dim {
		dst = make([]float32, c.dim)
	}
	dst = dst[:c.dim]
	if c.quant == nil {
		copy(dst, c.f32[c.offset(row):])
	} else {
		c.quant.DecodeTo(dst, c.code(row))
	}
	return dst
}

// Norm returns the cached L2 norm of a row.
func (c *Columnar) Norm(row uint32) float32 { return c.norms[row] }

// Dot returns the dot product of q with a row.
func (c *Columnar) Dot(row uint32, q []float32) float32 {
	if c.quant == nil {
		off := c.offset(row)
		return distance.Dot(q, c.f32[off:off+c.dim])
	}
	return c.quant.Dot(c.code(row), q)
}

// Raw returns the encoded bytes of a row (little-endian float32 when
// uncompressed). The returned slice is a copy.
func (c *Columnar) Raw(row uint32) []byte {
	if c.quant != nil {
		return append([]byte(nil), c.code(row)...)
	}
	out := make([]byte, 4*c.dim)
	off := c.offset(row)
	for i, v := range c.f32[off : off+c.dim] {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// AppendRaw stores an already encoded row, as read back from a snapshot.
func (c *Columnar) AppendRaw(raw []byte) (uint32, error) {
	if len(raw) != c.RowBytes() {
		return 0, fmt.Errorf("%w: raw row has %d bytes, want %d", ErrWrongDimension, len(raw), c.RowBytes())
	}
	row := uint32(len(c.norms))
	if c.quant == nil {
		for i := 0; i < c.dim; i++ {
			c.f32 = append(c.f32, math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
		}
	} else {
		c.codes = append(c.codes, raw...)
	}
	c.norms = append(c.norms, c.computeNorm(row))
	return row, nil
}

// Compact keeps only the given rows, in the given order, renumbering them
// 0..len(rows)-1.
func (c *Columnar) Compact(rows []uint32) {
	if c.quant == nil {
		f32 := make([]float32, 0, len(rows)*c.dim)
		for _, r := range rows {
			off := c.offset(r)
			f32 = append(f32, c.f32[off:off+c.dim]...)
		}
		c.f32 = f32
	} else {
		codes := make([]byte, 0, len(rows)*c.RowBytes())
		for _, r := range rows {
			codes = append(codes, c.code(r)...)
		}
		c.codes = codes
	}
	norms := make([]float32, len(rows))
	for i, r := range rows {
		norms[i] = c.norms[r]
	}
	c.norms = norms
}

// Convert re-encodes the given rows (in order) with a narrower encoding.
// For Bits8 the scalar quantizer is trained over the decoded rows.
func (c *Columnar) Convert(bits quantization.Bits, rows []uint32) (*Columnar, error) {
	if bits >= c.Bits() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrWiderEncoding, c.Bits(), bits)
	}

	var q quantization.Quantizer
	switch bits {
	case quantization.Bits16:
		q = quantization.HalfQuantizer{}
	case quantization.Bits8:
		sq := quantization.NewScalarQuantizer()
		buf := make([]float32, c.dim)
		err := sq.TrainSeq(func(yield func([]float32) bool) {
			for _, r := range rows {
				if !yield(c.Vector(r, buf)) {
					return
				}
			}
		})
		if err != nil && !errors.Is(err, quantization.ErrNoTrainingData) {
			return nil, err
		}
		q = sq
	default:
		_, err := quantization.ParseBits(int(bits))
		if err == nil {
			err = fmt.Errorf("%w: %s", ErrWiderEncoding, bits)
		}
		return nil, err
	}

	out := NewQuantized(c.dim, q)
	buf := make([]float32, c.dim)
	for _, r := range rows {
		if _, err := out.Append(c.Vector(r, buf)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SizeBytes is the memory held by vectors and norms.
func (c *Columnar) SizeBytes() int64 {
	return int64(4*len(c.f32) + len(c.codes) + 4*len(c.norms))
}

// fit widens an 8-bit range so that v encodes without clamping. Existing
// rows are re-encoded under the new range and their norms recomputed. The
// previous quantizer is left untouched for snapshots that still hold it.
func (c *Columnar) fit(v []float32) {
	sq, ok := c.quant.(*quantization.ScalarQuantizer)
	if !ok {
		return
	}
	wide, ok := sq.Widen(v)
	if !ok {
		return
	}
	for row := range uint32(len(c.norms)) {
		code := c.code(row)
		sq.DecodeTo(c.scratch, code)
		wide.EncodeTo(code, c.scratch)
	}
	c.quant = wide
	for row := range uint32(len(c.norms)) {
		c.norms[row] = c.computeNorm(row)
	}
}

func (c *Columnar) offset(row uint32) int { return int(row) * c.dim }

func (c *Columnar) code(row uint32) []byte {
	n := c.RowBytes()
	off := int(row) * n
	return c.codes[off : off+n]
}

func (c *Columnar) computeNorm(row uint32) float32 {
	if c.quant == nil {
		off := c.offset(row)
		return distance.Norm(c.f32[off : off+c.dim])
	}
	c.quant.DecodeTo(c.scratch, c.code(row))
	return distance.Norm(c.scratch)
}
