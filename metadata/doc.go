// Package metadata provides typed metadata documents, declarative filters and
// a Roaring Bitmap inverted index over record rows.
//
// # Metadata Types
//
//   - String: metadata.String("tech")
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - Bool: metadata.Bool(true)
//   - Array: metadata.Array([]metadata.Value{...})
//   - Null: metadata.Null()
//
// Ints and integral floats compare equal (1 == 1.0), both in filters and in
// the inverted index.
//
// Untyped input (map[string]any, JSON) is converted with FromAny and
// DocumentFromAny; unsupported Go types are rejected with ErrInvalidValue.
//
// # Filters
//
//	fs := metadata.NewFilterSet(
//	    metadata.Filter{Key: "category", Operator: metadata.OpEqual, Value: metadata.String("AI")},
//	    metadata.Filter{Key: "year", Operator: metadata.OpGreaterEqual, Value: metadata.Int(2020)},
//	)
//
// OpEqual and OpIn are answered from the inverted index; the remaining
// operators scan the candidate documents.
package metadata
