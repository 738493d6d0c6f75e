package testutil

import (
	"math/rand"
	"slices"
	"strconv"
	"sync"

	"github.com/hupe1980/vecstore/distance"
)

// SearchResult is a ground-truth hit: the index of a vector in the input
// slice and its cosine similarity to the query.
type SearchResult struct {
	Index      int
	Similarity float32
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	return r.vectors(num, dimensions, func() float32 { return r.rand.Float32() })
}

// UniformRangeVectors generates random vectors with values in range [-1, 1).
func (r *RNG) UniformRangeVectors(num int, dimensions int) [][]float32 {
	return r.vectors(num, dimensions, func() float32 { return r.rand.Float32()*2 - 1 })
}

// GaussianVectors generates random vectors with values from a standard normal distribution.
func (r *RNG) GaussianVectors(num int, dimensions int) [][]float32 {
	return r.vectors(num, dimensions, func() float32 { return float32(r.rand.NormFloat64()) })
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
// Uses Gaussian distribution for uniform distribution on the sphere.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	vectors := r.GaussianVectors(num, dimensions)
	for _, vec := range vectors {
		distance.NormalizeL2InPlace(vec)
	}
	return vectors
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	return r.UnitVectors(1, dimensions)[0]
}

// ClusteredVectors generates vectors clustered around random centroids, so
// that near-ties and tight neighborhoods show up.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	for i := range num {
		centroid := centroids[i%clusters]
		vec := data[i*dim : (i+1)*dim]
		for j := range dim {
			vec[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
		vectors[i] = vec
	}
	return vectors
}

func (r *RNG) vectors(num, dimensions int, next func() float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = next()
		}
		vectors[i] = vec
	}
	return vectors
}

// Categories generates num metadata maps with a "category" drawn from
// values, an integer "year" in [2015, 2025) and a "seq" holding the index.
func (r *RNG) Categories(num int, values ...string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := make([]map[string]any, num)
	for i := range docs {
		docs[i] = map[string]any{
			"category": values[r.rand.Intn(len(values))],
			"year":     2015 + r.rand.Intn(10),
			"seq":      i,
		}
	}
	return docs
}

// IDs returns num ids with the given prefix: prefix-0, prefix-1, ...
func IDs(prefix string, num int) []string {
	ids := make([]string, num)
	for i := range ids {
		ids[i] = prefix + "-" + strconv.Itoa(i)
	}
	return ids
}

// BruteForceCosine performs exact cosine search for ground truth. Ties keep
// input order.
func BruteForceCosine(vectors [][]float32, query []float32, k int) []SearchResult {
	results := make([]SearchResult, len(vectors))
	for i, v := range vectors {
		results[i] = SearchResult{Index: i, Similarity: distance.Cosine(query, v)}
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// ComputeRecall returns the share of the exact top-k found in approximate.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	k := min(len(approximate), len(groundTruth))

	truthSet := make(map[int]struct{}, k)
	for i := range k {
		truthSet[groundTruth[i].Index] = struct{}{}
	}

	hits := 0
	for _, r := range approximate[:k] {
		if _, ok := truthSet[r.Index]; ok {
			hits++
		}
	}

	return float64(hits) / float64(k)
}
