// Package testutil provides testing utilities for vecstore.
//
// This package is intended for use in tests only. It generates deterministic
// random vectors and metadata, and computes exact cosine neighbors as ground
// truth.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 128)
//	docs := rng.Categories(1000, "AI", "DB", "OS")
//
// # Exact Search (Ground Truth)
//
//	hits := testutil.BruteForceCosine(vecs, query, 10)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exact, approximate)
package testutil
