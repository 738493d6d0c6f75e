package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/internal/hash"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/quantization"
)

// Snapshot is the persisted state of one collection.
type Snapshot struct {
	// Dimension is zero for a store that never held a vector.
	Dimension int
	// Quantizer is nil for float32 rows.
	Quantizer quantization.Quantizer
	// Records in insertion order.
	Records []Record
}

// Record is one persisted vector record.
type Record struct {
	ID       string
	Metadata metadata.Document
	// Vector is the row in the snapshot's representation (see Snapshot.RowBytes).
	Vector []byte
}

// Bits returns the stored component width.
func (s *Snapshot) Bits() quantization.Bits {
	if s.Quantizer == nil {
		return quantization.Bits32
	}
	return s.Quantizer.Bits()
}

// RowBytes is the encoded size of one record's vector.
func (s *Snapshot) RowBytes() int {
	return s.Dimension * s.Bits().BytesPerDimension()
}

// WriteOptions controls how WriteSnapshot encodes a snapshot.
type WriteOptions struct {
	Codec       codec.Codec
	Compression Compression
}

// WriteSnapshot encodes snap to w.
func WriteSnapshot(w io.Writer, snap *Snapshot, opts WriteOptions) error {
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	hdr := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: opts.Compression,
	}
	if err := hdr.setCodecName(opts.Codec.Name()); err != nil {
		return err
	}

	raw, err := encodeBody(snap, opts.Codec, &hdr)
	if err != nil {
		return err
	}
	stored, err := compressBody(opts.Compression, raw)
	if err != nil {
		return err
	}

	hdr.RawSize = uint64(len(raw))
	hdr.StoredSize = uint64(len(stored))
	hdr.Checksum = hash.CRC32C(stored)

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	_, err = w.Write(stored)
	return err
}

// ReadSnapshot decodes a snapshot from r. Any structural problem is reported
// as ErrCorruptSnapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var hdr FileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrCorruptSnapshot)
		}
		return nil, err
	}
	if err := hdr.validate(); err != nil {
		return nil, err
	}

	hr := hash.NewReader(io.LimitReader(r, int64(hdr.StoredSize)))
	stored, err := io.ReadAll(hr)
	if err != nil {
		return nil, err
	}
	if uint64(len(stored)) != hdr.StoredSize {
		return nil, fmt.Errorf("%w: truncated body: %d of %d bytes", ErrCorruptSnapshot, len(stored), hdr.StoredSize)
	}
	if sum := hr.Sum32(); sum != hdr.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch: got 0x%08x, want 0x%08x", ErrCorruptSnapshot, sum, hdr.Checksum)
	}

	c, err := codec.ByName(hdr.CodecName())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	raw, err := decompressBody(hdr.Compression, stored, hdr.RawSize)
	if err != nil {
		return nil, err
	}
	return decodeBody(raw, c, hdr.Flags)
}

func encodeBody(snap *Snapshot, c codec.Codec, hdr *FileHeader) ([]byte, error) {
	rowBytes := snap.RowBytes()

	var buf bytes.Buffer
	buf.Grow(16 + len(snap.Records)*(rowBytes+32))

	var scratch [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) {
		buf.Write(binary.AppendUvarint(scratch[:0], v))
	}

	buf.Write(binary.LittleEndian.AppendUint32(scratch[:0], uint32(snap.Dimension)))
	buf.WriteByte(byte(snap.Bits()))

	if sq, ok := snap.Quantizer.(*quantization.ScalarQuantizer); ok {
		params, err := sq.MarshalBinary()
		if err != nil {
			return nil, err
		}
		hdr.Flags |= FlagScalarParams
		buf.Write(params)
	}

	putUvarint(uint64(len(snap.Records)))
	for i := range snap.Records {
		rec := &snap.Records[i]
		if len(rec.Vector) != rowBytes {
			return nil, fmt.Errorf("record %q: vector has %d bytes, want %d", rec.ID, len(rec.Vector), rowBytes)
		}

		putUvarint(uint64(len(rec.ID)))
		buf.WriteString(rec.ID)

		if len(rec.Metadata) == 0 {
			putUvarint(0)
		} else {
			meta, err := c.Marshal(rec.Metadata)
			if err != nil {
				return nil, fmt.Errorf("record %q: metadata: %w", rec.ID, err)
			}
			putUvarint(uint64(len(meta)))
			buf.Write(meta)
		}

		buf.Write(rec.Vector)
	}
	return buf.Bytes(), nil
}

// cursor reads the body; the first failure sticks.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) fail(what string) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: short body reading %s at offset %d", ErrCorruptSnapshot, what, c.off)
	}
}

func (c *cursor) next(n int, what string) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > len(c.b)-c.off {
		c.fail(what)
		return nil
	}
	out := c.b[c.off : c.off+n]
	c.off += n
	return out
}

func (c *cursor) uvarint(what string) uint64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Uvarint(c.b[c.off:])
	if n <= 0 {
		c.fail(what)
		return 0
	}
	c.off += n
	return v
}

func (c *cursor) length(what string) int {
	v := c.uvarint(what)
	if v > uint64(len(c.b)-c.off) {
		c.fail(what)
		return 0
	}
	return int(v)
}

func decodeBody(raw []byte, c codec.Codec, flags uint16) (*Snapshot, error) {
	cur := &cursor{b: raw}
	snap := &Snapshot{}

	if b := cur.next(4, "dimension"); b != nil {
		snap.Dimension = int(binary.LittleEndian.Uint32(b))
	}
	var bits quantization.Bits
	if b := cur.next(1, "bits"); b != nil {
		bits = quantization.Bits(b[0])
	}
	if cur.err != nil {
		return nil, cur.err
	}

	switch bits {
	case quantization.Bits32:
	case quantization.Bits16:
		snap.Quantizer = quantization.HalfQuantizer{}
	case quantization.Bits8:
		if flags&FlagScalarParams == 0 {
			return nil, fmt.Errorf("%w: 8-bit body without quantizer bounds", ErrCorruptSnapshot)
		}
		sq := quantization.NewScalarQuantizer()
		if err := sq.UnmarshalBinary(cur.next(8, "quantizer")); err != nil {
			if cur.err != nil {
				return nil, cur.err
			}
			return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
		}
		snap.Quantizer = sq
	default:
		return nil, fmt.Errorf("%w: unsupported width %d", ErrCorruptSnapshot, bits)
	}

	rowBytes := snap.RowBytes()
	count := cur.uvarint("record count")
	if cur.err != nil {
		return nil, cur.err
	}
	// Every record takes at least two length bytes plus its row.
	if count > uint64(len(raw)-cur.off)/uint64(rowBytes+2) {
		return nil, fmt.Errorf("%w: %d records cannot fit in %d bytes", ErrCorruptSnapshot, count, len(raw)-cur.off)
	}
	if count > 0 && snap.Dimension == 0 {
		return nil, fmt.Errorf("%w: records without a dimension", ErrCorruptSnapshot)
	}

	snap.Records = make([]Record, 0, count)
	seen := make(map[string]struct{}, count)
	for range count {
		var rec Record
		rec.ID = string(cur.next(cur.length("id length"), "id"))
		meta := cur.next(cur.length("metadata length"), "metadata")
		vec := cur.next(rowBytes, "vector")
		if cur.err != nil {
			return nil, cur.err
		}

		if _, dup := seen[rec.ID]; dup || rec.ID == "" {
			return nil, fmt.Errorf("%w: invalid or duplicate id %q", ErrCorruptSnapshot, rec.ID)
		}
		seen[rec.ID] = struct{}{}

		if len(meta) > 0 {
			if err := c.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("%w: record %q metadata: %w", ErrCorruptSnapshot, rec.ID, err)
			}
		}
		rec.Vector = bytes.Clone(vec)
		snap.Records = append(snap.Records, rec)
	}

	if cur.off != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, len(raw)-cur.off)
	}
	return snap, nil
}
