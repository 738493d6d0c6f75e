package recordstore

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/quantization"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/vectorstore"
)

// Options configures a Store.
type Options struct {
	Limits Limits
	// Resources accounts vector and id memory. Nil means unaccounted.
	Resources *resource.Controller
}

// Store holds records addressed by id and by row.
type Store struct {
	dim     int
	quant   quantization.Quantizer // active encoding; nil for float32
	retrain bool                   // train an 8-bit quantizer on the next first insert

	vectors *vectorstore.Columnar // nil until the dimension is fixed
	ids     []string              // row -> id, "" for tombstones
	rows    map[string]uint32
	live    *roaring.Bitmap
	meta    *metadata.Index

	limits   Limits
	rc       *resource.Controller
	reserved int64
	idBytes  int64
}

// New creates an empty store.
func New(opts Options) *Store {
	return &Store{
		rows:   make(map[string]uint32),
		live:   roaring.New(),
		meta:   metadata.NewIndex(),
		limits: opts.Limits,
		rc:     opts.Resources,
	}
}

// Dimension returns D, or 0 before the first insert.
func (s *Store) Dimension() int { return s.dim }

// Len returns the number of live records.
func (s *Store) Len() int { return int(s.live.GetCardinality()) }

// Deleted returns the number of tombstoned row slots awaiting compaction.
func (s *Store) Deleted() int { return len(s.ids) - s.Len() }

// Bits returns the stored component width.
func (s *Store) Bits() quantization.Bits {
	if s.quant == nil {
		return quantization.Bits32
	}
	return s.quant.Bits()
}

// Quantizer returns the active encoder, nil for float32 storage.
func (s *Store) Quantizer() quantization.Quantizer { return s.quant }

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	_, ok := s.rows[id]
	return ok
}

// Put inserts a record, or replaces vector and metadata of an existing id
// while keeping its insertion position. doc is owned by the store afterwards.
// On error the store is unchanged.
func (s *Store) Put(id string, v []float32, doc metadata.Document) (created bool, err error) {
	if err := s.validateID(id); err != nil {
		return false, err
	}
	if err := s.ValidateVector(v); err != nil {
		return false, err
	}

	if row, ok := s.rows[id]; ok {
		if err := s.vectors.Set(row, v); err != nil {
			return false, err
		}
		s.syncQuantizer()
		s.meta.Set(row, doc)
		return false, nil
	}

	cost := int64(len(v)*s.Bits().BytesPerDimension()+4) + int64(len(id))
	if err := s.reserve(cost); err != nil {
		return false, err
	}

	fresh, prevDim := s.vectors == nil, s.dim
	if fresh {
		s.initColumn(v)
	}
	row, err := s.vectors.Append(v)
	if err != nil {
		if fresh {
			s.vectors, s.dim = nil, prevDim
		}
		s.settle()
		return false, err
	}

	s.syncQuantizer()
	s.ids = append(s.ids, id)
	s.rows[id] = row
	s.live.Add(row)
	s.meta.Set(row, doc)
	s.idBytes += int64(len(id))
	return true, nil
}

// syncQuantizer adopts the column's quantizer, which an 8-bit column swaps
// for a wider one when a write falls outside the trained range.
func (s *Store) syncQuantizer() {
	if s.vectors != nil {
		s.quant = s.vectors.Quantizer()
	}
}

// initColumn creates the vector column for the first vector after a reset.
func (s *Store) initColumn(first []float32) {
	s.dim = len(first)
	if s.retrain {
		sq := quantization.NewScalarQuantizer()
		// A single vector always trains.
		_ = sq.Train([][]float32{first})
		s.quant, s.retrain = sq, false
	}
	if s.quant == nil {
		s.vectors = vectorstore.New(s.dim)
	} else {
		s.vectors = vectorstore.NewQuantized(s.dim, s.quant)
	}
}

// Update replaces the vector when v is non-nil and the metadata when setMeta
// is true. On error the store is unchanged.
func (s *Store) Update(id string, v []float32, doc metadata.Document, setMeta bool) error {
	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if v != nil {
		if err := s.ValidateVector(v); err != nil {
			return err
		}
		if err := s.vectors.Set(row, v); err != nil {
			return err
		}
		s.syncQuantizer()
	}
	if setMeta {
		s.meta.Set(row, doc)
	}
	return nil
}

// Delete tombstones a record. It reports false for unknown ids.
func (s *Store) Delete(id string) bool {
	row, ok := s.rows[id]
	if !ok {
		return false
	}
	delete(s.rows, id)
	s.ids[row] = ""
	s.live.Remove(row)
	s.meta.Delete(row)
	s.idBytes -= int64(len(id))

	s.maybeCompact()
	return true
}

// Get returns a decoded copy of the vector and a copy of the metadata.
func (s *Store) Get(id string) ([]float32, metadata.Document, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s.vectors.Vector(row, nil), s.Metadata(row).Clone(), nil
}

// IDs returns the live ids in insertion order.
func (s *Store) IDs() []string {
	out := make([]string, 0, s.Len())
	it := s.live.Iterator()
	for it.HasNext() {
		out = append(out, s.ids[it.Next()])
	}
	return out
}

// Live returns the bitmap of live rows. Callers must not modify it.
func (s *Store) Live() *roaring.Bitmap { return s.live }

// ID returns the id stored in row.
func (s *Store) ID(row uint32) string { return s.ids[row] }

// Metadata returns the document stored for row without copying it.
func (s *Store) Metadata(row uint32) metadata.Document {
	doc, _ := s.meta.Get(row)
	return doc
}

// Vectors exposes the vector column for scoring. Nil before the first insert.
func (s *Store) Vectors() *vectorstore.Columnar { return s.vectors }

// Filter returns the live rows matching fs.
func (s *Store) Filter(fs *metadata.FilterSet) *roaring.Bitmap {
	return s.meta.Evaluate(fs, s.live)
}

// MetadataFields returns the indexed metadata keys, sorted.
func (s *Store) MetadataFields() []string { return s.meta.Fields() }

// Clear drops every record and the dimension. The compression width is kept,
// since compression is one-way.
func (s *Store) Clear() {
	if s.Bits() == quantization.Bits8 {
		s.retrain = true
	}
	s.dim = 0
	s.vectors = nil
	s.ids = nil
	clear(s.rows)
	s.live.Clear()
	s.meta.Reset()
	s.idBytes = 0
	s.settle()
}

// Release returns all reserved memory to the resource controller. The store
// must not be used afterwards.
func (s *Store) Release() {
	s.rc.ReleaseMemory(s.reserved)
	s.reserved = 0
}

// SizeBytes estimates the memory held by vectors, ids and metadata bitmaps.
func (s *Store) SizeBytes() int64 {
	return s.footprint() + int64(s.meta.GetStats().MemoryBytes)
}

func (s *Store) footprint() int64 {
	var n int64
	if s.vectors != nil {
		n = s.vectors.SizeBytes()
	}
	return n + s.idBytes
}

func (s *Store) reserve(n int64) error {
	if !s.rc.TryAcquireMemory(n) {
		return fmt.Errorf("%w: need %d more bytes", resource.ErrMemoryLimit, n)
	}
	s.reserved += n
	return nil
}

// settle releases reservations the store no longer uses.
func (s *Store) settle() {
	if surplus := s.reserved - s.footprint(); surplus > 0 {
		s.rc.ReleaseMemory(surplus)
		s.reserved -= surplus
	}
}
