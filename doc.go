// Package vecstore provides an embedded vector store for Go.
//
// A Store keeps dense float32 embeddings with metadata in memory and answers
// exact cosine top-N queries. The first vector fixes the dimension; every
// later vector and query must match it.
//
// # Quick Start
//
//	ctx := context.Background()
//	db := vecstore.New(vecstore.WithDataDir("./data"))
//	defer db.Close()
//
//	id, _ := db.AddVector(ctx, []float32{0.1, 0.2, 0.3}, map[string]any{"category": "AI"})
//	results, _ := db.TopCosineSimilarity(ctx, []float32{0.1, 0.2, 0.25}, 5, nil)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Similarity, r.Metadata)
//	}
//
// # Filtering
//
// Filters select candidates before scoring, so a filtered query still returns
// up to N matches:
//
//	results, _ := db.TopCosineSimilarity(ctx, q, 5, func(id string, md metadata.Document) bool {
//	    v, _ := md["category"].AsString()
//	    return v == "AI"
//	})
//
// SearchWithFilterSet takes declarative filters answered from an inverted
// index of Roaring bitmaps:
//
//	fs := metadata.NewFilterSet(metadata.Filter{Key: "year", Operator: metadata.OpGreaterThan, Value: metadata.Int(2020)})
//	results, _ := db.SearchWithFilterSet(ctx, q, 5, fs)
//
// # Compression
//
// CompressVectors re-encodes stored vectors as IEEE-754 half floats (16) or
// 8-bit scalar codes (8). It is one-way: 32 to 16 to 8.
//
// # Persistence
//
// SaveToDisk writes a checksummed snapshot of a named collection through a
// blobstore.BlobStore: local files by default, or S3 and MinIO through the
// blobstore subpackages. LoadFromDisk replaces the in-memory state with it.
//
// # Errors
//
// Errors match one of ErrDimension, ErrNotFound, ErrOperation,
// ErrConnection and ErrNotImplemented with errors.Is.
package vecstore
