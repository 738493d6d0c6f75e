package persistence

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// maxPrealloc bounds the buffer reserved from a header's RawSize before the
// body has proven to decode.
const maxPrealloc = 64 << 20

func compressBody(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer func() { _ = enc.Close() }()
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
}

func decompressBody(c Compression, stored []byte, rawSize uint64) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch c {
	case CompressionNone:
		out = stored
	case CompressionLZ4:
		zr := lz4.NewReader(bytes.NewReader(stored))
		out, err = io.ReadAll(io.LimitReader(zr, int64(rawSize)+1))
	case CompressionZstd:
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err = dec.DecodeAll(stored, make([]byte, 0, min(rawSize, maxPrealloc)))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %w", ErrCorruptSnapshot, c, err)
	}
	if uint64(len(out)) != rawSize {
		return nil, fmt.Errorf("%w: body is %d bytes, header says %d", ErrCorruptSnapshot, len(out), rawSize)
	}
	return out, nil
}
