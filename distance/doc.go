// Package distance provides the vector arithmetic behind cosine search.
//
// All functions are pure Go and assume equal-length inputs; length checks
// belong to the caller.
//
// # Usage
//
//	sim := distance.Cosine(a, b)             // in [-1, 1], 0 for zero vectors
//	ok := distance.NormalizeL2InPlace(vec)   // false for zero vectors
//	sim = distance.CosineFromParts(distance.Dot(a, b), distance.Norm(a), distance.Norm(b))
package distance
