package f16

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32KnownValues(t *testing.T) {
	tests := []struct {
		name string
		in   Half
		want float32
	}{
		{"+0", 0x0000, 0},
		{"+1", 0x3c00, 1},
		{"-1", 0xbc00, -1},
		{"-2", 0xc000, -2},
		{"0.5", 0x3800, 0.5},
		{"max", 0x7bff, 65504},
		{"+Inf", 0x7c00, float32(math.Inf(1))},
		{"-Inf", 0xfc00, float32(math.Inf(-1))},
		{"min subnormal", 0x0001, float32(math.Ldexp(1, -24))},
		{"min normal", 0x0400, float32(math.Ldexp(1, -14))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Float32())
		})
	}
}

func TestNegativeZeroKeepsSign(t *testing.T) {
	negZero := float32(math.Copysign(0, -1))
	assert.Equal(t, Half(0x8000), FromFloat32(negZero))
	assert.Equal(t, math.Float32bits(negZero), math.Float32bits(Half(0x8000).Float32()))
}

func TestNaN(t *testing.T) {
	h := FromFloat32(float32(math.NaN()))
	assert.True(t, math.IsNaN(float64(h.Float32())))
}

func TestFromFloat32Overflow(t *testing.T) {
	assert.Equal(t, Half(0x7c00), FromFloat32(70000))
	assert.Equal(t, Half(0xfc00), FromFloat32(-70000))
	// 65520 is the midpoint between max half and 2^16 and rounds to even (Inf).
	assert.Equal(t, Half(0x7c00), FromFloat32(65520))
}

func TestFromFloat32Underflow(t *testing.T) {
	assert.Equal(t, Half(0), FromFloat32(float32(math.Ldexp(1, -30))))
	// Exactly half of the smallest subnormal ties to even (zero).
	assert.Equal(t, Half(0), FromFloat32(float32(math.Ldexp(1, -25))))
	assert.Equal(t, Half(1), FromFloat32(float32(math.Ldexp(1.5, -25))))
}

func TestRoundTripExactValues(t *testing.T) {
	// Every finite half survives a round trip through float32.
	for i := 0; i < 0x10000; i++ {
		h := Half(i)
		if h&0x7c00 == 0x7c00 {
			continue
		}
		require.Equal(t, h, FromFloat32(h.Float32()), "half %#04x", i)
	}
}

func TestTiesToEven(t *testing.T) {
	// 1 + 2^-11 lies halfway between 1 and 1+2^-10; even mantissa wins.
	assert.Equal(t, Half(0x3c00), FromFloat32(1+float32(math.Ldexp(1, -11))))
	// 1 + 3*2^-11 lies halfway between 1+2^-10 (odd) and 1+2^-9 (even).
	assert.Equal(t, Half(0x3c02), FromFloat32(1+float32(3*math.Ldexp(1, -11))))
}

func TestSliceHelpers(t *testing.T) {
	src := []float32{0, 1, -0.25, 3.5, 1024}
	buf := make([]byte, Size*len(src))
	PutFloat32s(buf, src)

	dst := make([]float32, len(src))
	Float32s(dst, buf)
	assert.Equal(t, src, dst)

	for i, v := range src {
		assert.Equal(t, v, At(buf, i))
	}
}

func TestRelativeError(t *testing.T) {
	for _, v := range []float32{0.1, 0.333, 0.7071, 12.345, -0.9} {
		got := FromFloat32(v).Float32()
		assert.InEpsilon(t, v, got, 1e-3)
	}
}
