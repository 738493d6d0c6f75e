package metadata

import (
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index combines metadata storage with an inverted index of Roaring Bitmaps.
//
// Architecture:
//   - Primary storage: map[row]Document
//   - Inverted index: field -> valueKey -> bitmap of rows
//
// Rows are the record store's insertion-ordered slots, so iterating a bitmap
// yields rows in insertion order.
//
// Index is not safe for concurrent mutation; the owning store serializes
// writers and may share it between readers.
type Index struct {
	docs     map[uint32]Document
	inverted map[string]map[string]*roaring.Bitmap
}

// NewIndex creates an empty metadata index.
func NewIndex() *Index {
	return &Index{
		docs:     make(map[uint32]Document),
		inverted: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Set stores metadata for a row and updates the inverted index, replacing any
// previous document. An empty document removes the row.
func (ix *Index) Set(row uint32, doc Document) {
	if old, ok := ix.docs[row]; ok {
		ix.unindex(row, old)
		delete(ix.docs, row)
	}
	if len(doc) == 0 {
		return
	}
	ix.docs[row] = doc
	ix.index(row, doc)
}

// Get retrieves the document stored for a row.
func (ix *Index) Get(row uint32) (Document, bool) {
	doc, ok := ix.docs[row]
	return doc, ok
}

// Delete removes a row from storage and the inverted index.
func (ix *Index) Delete(row uint32) {
	if doc, ok := ix.docs[row]; ok {
		ix.unindex(row, doc)
		delete(ix.docs, row)
	}
}

// Len returns the number of rows carrying metadata.
func (ix *Index) Len() int { return len(ix.docs) }

// Reset drops all documents.
func (ix *Index) Reset() {
	clear(ix.docs)
	clear(ix.inverted)
}

// Fields returns the indexed field names in sorted order.
func (ix *Index) Fields() []string {
	return slices.Sorted(maps.Keys(ix.inverted))
}

// Remap renumbers rows after compaction: order[newRow] = oldRow.
// Rows missing from order are dropped.
func (ix *Index) Remap(order []uint32) {
	docs := make(map[uint32]Document, len(ix.docs))
	for newRow, oldRow := range order {
		if doc, ok := ix.docs[oldRow]; ok {
			docs[uint32(newRow)] = doc
		}
	}

	ix.docs = docs
	ix.inverted = make(map[string]map[string]*roaring.Bitmap)
	for row, doc := range docs {
		ix.index(row, doc)
	}
}

// Evaluate returns the subset of candidates matching every filter in fs.
//
// OpEqual and OpIn intersect posting lists; other operators scan the documents
// of the rows still in play. A nil or empty set returns candidates unchanged
// (copied).
func (ix *Index) Evaluate(fs *FilterSet, candidates *roaring.Bitmap) *roaring.Bitmap {
	result := candidates.Clone()
	if fs == nil {
		return result
	}

	for i := range fs.Filters {
		if result.IsEmpty() {
			break
		}
		f := &fs.Filters[i]

		switch f.Operator {
		case OpEqual:
			if bm := ix.bitmap(f.Key, f.Value); bm != nil {
				result.And(bm)
			} else {
				result.Clear()
			}
		case OpIn:
			union := roaring.New()
			for _, v := range f.Value.A {
				if bm := ix.bitmap(f.Key, v); bm != nil {
					union.Or(bm)
				}
			}
			result.And(union)
		default:
			result = ix.scan(f, result)
		}
	}
	return result
}

func (ix *Index) scan(f *Filter, rows *roaring.Bitmap) *roaring.Bitmap {
	out := roaring.New()
	it := rows.Iterator()
	for it.HasNext() {
		row := it.Next()
		if doc, ok := ix.docs[row]; ok && f.Matches(doc) {
			out.Add(row)
		}
	}
	return out
}

func (ix *Index) bitmap(field string, v Value) *roaring.Bitmap {
	values, ok := ix.inverted[field]
	if !ok {
		return nil
	}
	return values[v.Key()]
}

func (ix *Index) index(row uint32, doc Document) {
	for field, value := range doc {
		values, ok := ix.inverted[field]
		if !ok {
			values = make(map[string]*roaring.Bitmap)
			ix.inverted[field] = values
		}
		key := value.Key()
		bm, ok := values[key]
		if !ok {
			bm = roaring.New()
			values[key] = bm
		}
		bm.Add(row)
	}
}

func (ix *Index) unindex(row uint32, doc Document) {
	for field, value := range doc {
		values, ok := ix.inverted[field]
		if !ok {
			continue
		}
		key := value.Key()
		bm, ok := values[key]
		if !ok {
			continue
		}
		bm.Remove(row)
		if bm.IsEmpty() {
			delete(values, key)
			if len(values) == 0 {
				delete(ix.inverted, field)
			}
		}
	}
}

// Stats describes the inverted index.
type Stats struct {
	DocumentCount    int    // Rows with metadata
	FieldCount       int    // Number of indexed fields
	BitmapCount      int    // Total number of posting lists
	TotalCardinality uint64 // Sum of all bitmap cardinalities
	MemoryBytes      uint64 // Estimated bitmap memory
}

// GetStats returns statistics about the index.
func (ix *Index) GetStats() Stats {
	stats := Stats{
		DocumentCount: len(ix.docs),
		FieldCount:    len(ix.inverted),
	}
	for _, values := range ix.inverted {
		for _, bm := range values {
			stats.BitmapCount++
			stats.TotalCardinality += bm.GetCardinality()
			stats.MemoryBytes += bm.GetSizeInBytes()
		}
	}
	return stats
}
