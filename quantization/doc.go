// Package quantization provides the lossy vector encodings used by store
// compression.
//
// Two encodings are supported, each identified by its bit width:
//
//   - Bits16: IEEE-754 half precision, 2x smaller than float32
//   - Bits8: scalar quantization with a global min/max, 4x smaller
//
// Transitions only ever lower the width (32 -> 16 -> 8). Decoding yields the
// quantized approximation; the original float32 values are not recoverable.
//
//	sq := quantization.NewScalarQuantizer()
//	_ = sq.Train(vectors)
//	code := make([]byte, dim)
//	sq.EncodeTo(code, vec)
package quantization
