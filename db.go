package vecstore

import (
	"context"

	"github.com/hupe1980/vecstore/metadata"
)

// DB is the capability set shared by the local Store and remote backends.
type DB interface {
	// AddVector stores a vector with optional metadata and returns its id.
	AddVector(ctx context.Context, vector []float32, md map[string]any, opts ...WriteOption) (string, error)

	// AddVectorsBatch stores items in order. It stops at the first failing
	// item and returns the ids committed before it along with a *BatchError.
	AddVectorsBatch(ctx context.Context, items []BatchItem, opts ...WriteOption) ([]string, error)

	// AddTextWithEmbedding stores embedding with text under the metadata key
	// "text".
	AddTextWithEmbedding(ctx context.Context, text string, embedding []float32, md map[string]any, opts ...WriteOption) (string, error)

	// DeleteVector removes a record. Unknown ids return false and ErrNotFound.
	DeleteVector(ctx context.Context, id string) (bool, error)

	// UpdateVector replaces the vector when vector is non-nil and the
	// metadata when md is non-nil. Unknown ids return false and ErrNotFound.
	UpdateVector(ctx context.Context, id string, vector []float32, md map[string]any, opts ...WriteOption) (bool, error)

	// TopCosineSimilarity returns the topN records most similar to target,
	// best first. filter, when non-nil, selects candidates before scoring.
	TopCosineSimilarity(ctx context.Context, target []float32, topN int, filter FilterFunc) ([]Result, error)

	// SearchByText embeds text and searches with the embedding.
	SearchByText(ctx context.Context, text string, embedder Embedder, topN int, filter FilterFunc) ([]Result, error)

	// QueryByMetadata returns the records whose metadata equals every pair
	// of query, in insertion order.
	QueryByMetadata(ctx context.Context, query map[string]any) ([]Record, error)

	// GetVectorByID returns a copy of one record.
	GetVectorByID(ctx context.Context, id string) (*Record, error)

	// ListAllIDs returns every id in insertion order.
	ListAllIDs(ctx context.Context) ([]string, error)

	// GetVectorCount returns the number of records.
	GetVectorCount(ctx context.Context) (int, error)

	// ClearDatabase drops every record and the dimension.
	ClearDatabase(ctx context.Context) error

	// GetStats reports at least StatTotalVectors, StatDimension and
	// StatProvider.
	GetStats(ctx context.Context) (Stats, error)

	// SaveToDisk persists the records as a named collection.
	SaveToDisk(ctx context.Context, collection string) error

	// LoadFromDisk replaces the records with a saved collection.
	LoadFromDisk(ctx context.Context, collection string) error

	// CompressVectors re-encodes stored vectors with 16 or 8 bits per
	// component and returns the compression ratio against float32.
	CompressVectors(ctx context.Context, bits int) (float64, error)

	// Close releases resources. Later calls fail with ErrClosed.
	Close() error
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// FilterFunc selects search candidates. md must not be modified or retained.
type FilterFunc func(id string, md metadata.Document) bool

// BatchItem is one entry of AddVectorsBatch. An empty ID is generated.
type BatchItem struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Result is one search hit.
type Result struct {
	ID         string
	Metadata   metadata.Document
	Similarity float32
}

// Record is a stored vector with its metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata metadata.Document
}

// TextKey is the metadata key AddTextWithEmbedding stores the text under.
const TextKey = "text"

// Stats keys.
const (
	StatTotalVectors     = "total_vectors"
	StatDimension        = "dimension"
	StatProvider         = "provider"
	StatSizeInMemoryMB   = "size_in_memory_mb"
	StatCompressionBits  = "compression_bits"
	StatCompressionRatio = "compression_ratio"
	StatMetadataFields   = "metadata_fields"
	StatDeletedSlots     = "deleted_slots"
)

// ProviderLocal is the StatProvider value of Store.
const ProviderLocal = "local"

// Stats maps stat keys to values.
type Stats map[string]any

// Int returns an integer stat, or 0.
func (s Stats) Int(key string) int {
	v, _ := s[key].(int)
	return v
}

// String returns a string stat, or "".
func (s Stats) String(key string) string {
	v, _ := s[key].(string)
	return v
}
