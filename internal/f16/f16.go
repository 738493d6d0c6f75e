// Package f16 converts between float32 and IEEE-754 binary16.
//
// Half precision is only a storage format here; arithmetic always runs on
// float32 values decoded on the fly.
package f16

import (
	"encoding/binary"
	"math"
)

// Size is the encoded width of one Half in bytes.
const Size = 2

// Half is a raw binary16 bit pattern (1 sign, 5 exponent, 10 fraction bits).
type Half uint16

const (
	halfSign = 0x8000
	halfInf  = 0x7c00
	halfNaN  = 0x7e00
)

// FromFloat32 rounds f to the nearest binary16 value, ties to even.
// Values beyond the half range become signed infinity.
func FromFloat32(f float32) Half {
	b := math.Float32bits(f)
	sign := uint32(b>>16) & halfSign
	exp := int32(b>>23&0xff) - 127
	mant := b & 0x7fffff

	switch {
	case exp == 128:
		if mant != 0 {
			return Half(sign | halfNaN)
		}
		return Half(sign | halfInf)
	case exp > 15:
		return Half(sign | halfInf)
	case exp >= -14:
		h := uint32(exp+15)<<10 | mant>>13
		// A carry out of the fraction bumps the exponent, which is
		// exactly the rounded result (including overflow to Inf).
		h += roundBit(mant, 13, h)
		return Half(sign | h)
	case exp >= -25:
		full := mant | 0x800000
		shift := uint32(-exp - 1)
		h := full >> shift
		h += roundBit(full, shift, h)
		return Half(sign | h)
	default:
		return Half(sign)
	}
}

// roundBit reports (as 0 or 1) whether truncating the low shift bits of v
// to kept must round up under ties-to-even.
func roundBit(v, shift, kept uint32) uint32 {
	rem := v & (1<<shift - 1)
	half := uint32(1) << (shift - 1)
	if rem > half || (rem == half && kept&1 == 1) {
		return 1
	}
	return 0
}

// Float32 widens h to float32. The conversion is exact.
func (h Half) Float32() float32 {
	sign := uint32(h&halfSign) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch exp {
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		v := float32(mant) * (1.0 / (1 << 24))
		if sign != 0 {
			return -v
		}
		return v
	default:
		return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
	}
}

// PutFloat32s encodes src into dst as little-endian halves.
// dst must hold at least Size*len(src) bytes.
func PutFloat32s(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*Size:], uint16(FromFloat32(v)))
	}
}

// Float32s decodes little-endian halves from src into dst.
// src must hold at least Size*len(dst) bytes.
func Float32s(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = Half(binary.LittleEndian.Uint16(src[i*Size:])).Float32()
	}
}

// At decodes the i-th half stored in src.
func At(src []byte, i int) float32 {
	return Half(binary.LittleEndian.Uint16(src[i*Size:])).Float32()
}
