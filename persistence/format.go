package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// MagicNumber identifies snapshot files (ASCII: "VST1").
	MagicNumber = 0x56535431
	// Version is the current snapshot format version.
	Version = 1

	// FlagScalarParams marks a body that carries 8-bit quantizer bounds.
	FlagScalarParams uint16 = 1 << 0

	knownFlags = FlagScalarParams

	codecNameSize = 12
)

var (
	// ErrCorruptSnapshot is returned for truncated, malformed or checksum-failing snapshots.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrUnsupportedVersion is returned for snapshots written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")

	// ErrUnknownCompression is returned for an unknown body compression.
	ErrUnknownCompression = errors.New("unknown snapshot compression")
)

// Compression selects how the snapshot body is compressed.
type Compression uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone Compression = iota
	// CompressionLZ4 uses the LZ4 frame format.
	CompressionLZ4
	// CompressionZstd uses Zstandard.
	CompressionZstd
)

// ParseCompression maps "none", "lz4" or "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// FileHeader is the fixed-size header at the start of every snapshot.
type FileHeader struct {
	Magic       uint32
	Version     uint16
	Flags       uint16
	Compression Compression
	_           [3]byte
	Codec       [codecNameSize]byte // zero padded
	StoredSize  uint64              // body bytes following the header
	RawSize     uint64              // body bytes after decompression
	Checksum    uint32              // CRC32C of the stored body
	_           [4]byte
}

// HeaderSize is the encoded size of FileHeader.
var HeaderSize = binary.Size(FileHeader{})

// CodecName returns the metadata codec recorded in the header.
func (h *FileHeader) CodecName() string {
	name := h.Codec[:]
	if i := strings.IndexByte(string(name), 0); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

func (h *FileHeader) setCodecName(name string) error {
	if len(name) > codecNameSize {
		return fmt.Errorf("codec name %q longer than %d bytes", name, codecNameSize)
	}
	h.Codec = [codecNameSize]byte{}
	copy(h.Codec[:], name)
	return nil
}

func (h *FileHeader) validate() error {
	if h.Magic != MagicNumber {
		return fmt.Errorf("%w: bad magic 0x%08x", ErrCorruptSnapshot, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, h.Version, Version)
	}
	if h.Flags&^knownFlags != 0 {
		return fmt.Errorf("%w: unknown flags 0x%04x", ErrCorruptSnapshot, h.Flags)
	}
	if h.Compression > CompressionZstd {
		return fmt.Errorf("%w: %w: %d", ErrCorruptSnapshot, ErrUnknownCompression, h.Compression)
	}
	return nil
}
