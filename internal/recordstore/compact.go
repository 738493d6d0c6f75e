package recordstore

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/quantization"
	"github.com/hupe1980/vecstore/vectorstore"
)

// compactMinDeleted is the tombstone count below which deletes never compact.
const compactMinDeleted = 64

// maybeCompact compacts once tombstones outnumber live rows.
func (s *Store) maybeCompact() {
	deleted := s.Deleted()
	if deleted >= compactMinDeleted && deleted > s.Len() {
		s.Compact()
	}
}

// Compact drops tombstoned rows, renumbering live rows in insertion order.
func (s *Store) Compact() {
	if s.Deleted() == 0 {
		return
	}
	order := s.live.ToArray()
	s.vectors.Compact(order)
	s.remap(order, s.vectors)
}

// remap installs col, whose row i holds what was row order[i].
func (s *Store) remap(order []uint32, col *vectorstore.Columnar) {
	ids := make([]string, len(order))
	for newRow, oldRow := range order {
		id := s.ids[oldRow]
		ids[newRow] = id
		s.rows[id] = uint32(newRow)
	}
	s.ids = ids
	s.meta.Remap(order)
	s.vectors = col

	s.live = roaring.New()
	s.live.AddRange(0, uint64(len(order)))
	s.settle()
}

// Compress re-encodes every vector with the narrower width bits and returns
// the ratio of float32 bytes to encoded bytes. Requesting the current width
// is a no-op; a wider width fails with vectorstore.ErrWiderEncoding.
//
// Norms are recomputed from the encoded rows, and rows inserted later are
// encoded with the same parameters.
func (s *Store) Compress(bits quantization.Bits) (float64, error) {
	if _, err := quantization.ParseBits(int(bits)); err != nil {
		return 0, err
	}
	current := s.Bits()
	if bits == current {
		return current.CompressionRatio(), nil
	}
	if bits > current {
		return 0, fmt.Errorf("%w: %s -> %s", vectorstore.ErrWiderEncoding, current, bits)
	}

	if s.Len() == 0 {
		// Nothing to train on: drop the tombstones and let the next insert
		// train the encoder.
		switch bits {
		case quantization.Bits16:
			s.quant = quantization.HalfQuantizer{}
		case quantization.Bits8:
			s.quant, s.retrain = quantization.NewScalarQuantizer(), true
		}
		s.vectors = nil
		s.ids = nil
		s.live.Clear()
		s.settle()
		return bits.CompressionRatio(), nil
	}

	order := s.live.ToArray()
	col, err := s.vectors.Convert(bits, order)
	if err != nil {
		return 0, err
	}
	s.quant = col.Quantizer()
	s.retrain = false
	s.remap(order, col)
	return bits.CompressionRatio(), nil
}

// Snapshot captures the live records in insertion order.
func (s *Store) Snapshot() *persistence.Snapshot {
	snap := &persistence.Snapshot{
		Dimension: s.dim,
		Quantizer: s.quant,
		Records:   make([]persistence.Record, 0, s.Len()),
	}
	it := s.live.Iterator()
	for it.HasNext() {
		row := it.Next()
		snap.Records = append(snap.Records, persistence.Record{
			ID:       s.ids[row],
			Metadata: s.Metadata(row),
			Vector:   s.vectors.Raw(row),
		})
	}
	return snap
}

// FromSnapshot builds a new store holding the snapshot's records.
func FromSnapshot(snap *persistence.Snapshot, opts Options) (*Store, error) {
	s := New(opts)
	s.quant = snap.Quantizer
	s.dim = snap.Dimension

	if len(snap.Records) == 0 {
		s.retrain = s.Bits() == quantization.Bits8
		return s, nil
	}

	cost := int64(len(snap.Records)) * int64(snap.RowBytes()+4)
	for i := range snap.Records {
		cost += int64(len(snap.Records[i].ID))
	}
	if err := s.reserve(cost); err != nil {
		return nil, err
	}

	if s.quant == nil {
		s.vectors = vectorstore.New(s.dim)
	} else {
		s.vectors = vectorstore.NewQuantized(s.dim, s.quant)
	}

	for i := range snap.Records {
		rec := &snap.Records[i]
		if err := s.validateID(rec.ID); err != nil {
			s.Release()
			return nil, err
		}
		if _, dup := s.rows[rec.ID]; dup {
			s.Release()
			return nil, fmt.Errorf("%w: duplicate %q", ErrInvalidID, rec.ID)
		}
		row, err := s.vectors.AppendRaw(rec.Vector)
		if err != nil {
			s.Release()
			return nil, err
		}
		s.ids = append(s.ids, rec.ID)
		s.rows[rec.ID] = row
		s.live.Add(row)
		s.meta.Set(row, rec.Metadata)
		s.idBytes += int64(len(rec.ID))
	}
	s.settle()
	return s, nil
}
