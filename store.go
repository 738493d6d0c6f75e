package vecstore

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/internal/recordstore"
	"github.com/hupe1980/vecstore/internal/searcher"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/quantization"
)

// maxIDAttempts bounds retries when the generator returns a taken id.
const maxIDAttempts = 16

// Store is the local in-memory DB. It is safe for concurrent use: reads share
// a lock, writes are exclusive.
type Store struct {
	mu      sync.RWMutex
	records *recordstore.Store
	closed  bool

	persist *persistence.Manager
	opts    options
	logger  *Logger
	metrics MetricsCollector
}

var _ DB = (*Store)(nil)

// New creates an empty store.
func New(optFns ...Option) *Store {
	o := applyOptions(optFns)
	s := &Store{
		opts:    o,
		logger:  o.logger.WithProvider(ProviderLocal),
		metrics: o.metricsCollector,
		persist: persistence.NewManager(o.blobStore,
			persistence.WithCodec(o.codec),
			persistence.WithCompression(o.compression),
			persistence.WithResourceController(o.resources),
		),
	}
	s.records = recordstore.New(s.recordOptions())
	return s
}

func (s *Store) recordOptions() recordstore.Options {
	return recordstore.Options{
		Limits: recordstore.Limits{
			MaxDimension: s.opts.limits.MaxDimension,
			MaxIDLength:  s.opts.limits.MaxIDLength,
		},
		Resources: s.opts.resources,
	}
}

// AddVector implements DB.
func (s *Store) AddVector(ctx context.Context, vector []float32, md map[string]any, opts ...WriteOption) (string, error) {
	start := time.Now()
	wo := ApplyWriteOptions(opts)
	id, err := s.addVector(ctx, wo.ID, vector, md, wo.Normalize)
	err = translateError(err)
	s.metrics.RecordInsert(time.Since(start), err)
	s.logger.LogInsert(ctx, id, len(vector), err)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) addVector(ctx context.Context, id string, vector []float32, md map[string]any, normalize bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return id, err
	}
	doc, err := s.document(md)
	if err != nil {
		return id, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return id, ErrClosed
	}
	return s.put(id, vector, doc, normalize)
}

// AddVectorsBatch implements DB. The batch holds the write lock throughout,
// so no reader observes a half-applied prefix mid-way.
func (s *Store) AddVectorsBatch(ctx context.Context, items []BatchItem, opts ...WriteOption) ([]string, error) {
	start := time.Now()
	wo := ApplyWriteOptions(opts)
	ids, err := s.addBatch(ctx, items, wo.Normalize)
	err = translateError(err)
	s.metrics.RecordBatchInsert(len(items), len(items)-len(ids), time.Since(start))
	s.logger.LogBatchInsert(ctx, len(items), len(ids), err)
	return ids, err
}

func (s *Store) addBatch(ctx context.Context, items []BatchItem, normalize bool) ([]string, error) {
	if limit := s.opts.limits.MaxBatchSize; limit > 0 && len(items) > limit {
		return nil, fmt.Errorf("%w: batch of %d exceeds %d", ErrLimitExceeded, len(items), limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(items))
	for i := range items {
		item := &items[i]
		id, err := s.batchItem(ctx, item, normalize)
		if err != nil {
			return ids, &BatchError{Index: i, Err: translateError(err)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) batchItem(ctx context.Context, item *BatchItem, normalize bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := s.document(item.Metadata)
	if err != nil {
		return "", err
	}
	return s.put(item.ID, item.Vector, doc, normalize)
}

// AddTextWithEmbedding implements DB. md is not modified.
func (s *Store) AddTextWithEmbedding(ctx context.Context, text string, embedding []float32, md map[string]any, opts ...WriteOption) (string, error) {
	withText := make(map[string]any, len(md)+1)
	maps.Copy(withText, md)
	withText[TextKey] = text
	return s.AddVector(ctx, embedding, withText, opts...)
}

// put validates and stores one record. Callers hold the write lock.
func (s *Store) put(id string, vector []float32, doc metadata.Document, normalize bool) (string, error) {
	if err := s.records.ValidateVector(vector); err != nil {
		return id, err
	}
	if id == "" {
		var err error
		if id, err = s.generateID(); err != nil {
			return "", err
		}
	}
	if normalize {
		if unit, ok := distance.NormalizeL2Copy(vector); ok {
			vector = unit
		}
	}
	_, err := s.records.Put(id, vector, doc)
	return id, err
}

func (s *Store) generateID() (string, error) {
	for range maxIDAttempts {
		if id := s.opts.newID(); id != "" && !s.records.Has(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: generator returned no unused id in %d attempts", ErrInvalidID, maxIDAttempts)
}

// document converts user metadata and checks that it encodes within the
// size limit, so every stored record can be saved.
func (s *Store) document(md map[string]any) (metadata.Document, error) {
	doc, err := metadata.DocumentFromAny(md)
	if err != nil || len(doc) == 0 {
		return doc, err
	}
	data, err := s.opts.codec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	if limit := s.opts.limits.MaxMetadataBytes; limit > 0 && len(data) > limit {
		return nil, fmt.Errorf("%w: metadata encodes to %d bytes, limit %d", ErrLimitExceeded, len(data), limit)
	}
	return doc, nil
}

// DeleteVector implements DB.
func (s *Store) DeleteVector(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	err := translateError(s.deleteVector(ctx, id))
	s.metrics.RecordDelete(time.Since(start), err)
	s.logger.LogDelete(ctx, id, err)
	return err == nil, err
}

func (s *Store) deleteVector(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.records.Delete(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}

// UpdateVector implements DB. A non-nil but empty md clears the metadata.
func (s *Store) UpdateVector(ctx context.Context, id string, vector []float32, md map[string]any, opts ...WriteOption) (bool, error) {
	start := time.Now()
	wo := ApplyWriteOptions(opts)
	err := translateError(s.updateVector(ctx, id, vector, md, wo.Normalize))
	s.metrics.RecordUpdate(time.Since(start), err)
	s.logger.LogUpdate(ctx, id, err)
	return err == nil, err
}

func (s *Store) updateVector(ctx context.Context, id string, vector []float32, md map[string]any, normalize bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var doc metadata.Document
	if md != nil {
		var err error
		if doc, err = s.document(md); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if vector != nil && normalize {
		if err := s.records.ValidateVector(vector); err != nil {
			return err
		}
		if unit, ok := distance.NormalizeL2Copy(vector); ok {
			vector = unit
		}
	}
	return s.records.Update(id, vector, doc, md != nil)
}

// TopCosineSimilarity implements DB.
func (s *Store) TopCosineSimilarity(ctx context.Context, target []float32, topN int, filter FilterFunc) ([]Result, error) {
	start := time.Now()
	results, err := s.search(ctx, target, topN, func() *roaring.Bitmap {
		if filter == nil {
			return s.records.Live()
		}
		return searcher.FilterRows(s.records.Live(), func(row uint32) bool {
			return filter(s.records.ID(row), s.records.Metadata(row))
		})
	})
	err = translateError(err)
	s.metrics.RecordSearch(topN, time.Since(start), err)
	s.logger.LogSearch(ctx, topN, len(results), err)
	return results, err
}

// SearchWithFilterSet is TopCosineSimilarity with a declarative filter. Equality
// and membership filters are answered from the inverted index.
func (s *Store) SearchWithFilterSet(ctx context.Context, target []float32, topN int, fs *metadata.FilterSet) ([]Result, error) {
	start := time.Now()
	var results []Result
	err := fs.Validate()
	if err == nil {
		results, err = s.search(ctx, target, topN, func() *roaring.Bitmap {
			return s.records.Filter(fs)
		})
	}
	err = translateError(err)
	s.metrics.RecordSearch(topN, time.Since(start), err)
	s.logger.LogSearch(ctx, topN, len(results), err)
	return results, err
}

// SearchByText implements DB. The embedder runs before any lock is taken.
func (s *Store) SearchByText(ctx context.Context, text string, embedder Embedder, topN int, filter FilterFunc) ([]Result, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	query, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrOperation, err)
	}
	return s.TopCosineSimilarity(ctx, query, topN, filter)
}

// search scores the rows chosen by candidates, which runs under the read lock.
func (s *Store) search(ctx context.Context, target []float32, topN int, candidates func() *roaring.Bitmap) ([]Result, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, topN)
	}
	if limit := s.opts.limits.MaxTopN; limit > 0 && topN > limit {
		return nil, fmt.Errorf("%w: top n %d exceeds %d", ErrLimitExceeded, topN, limit)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	// An empty store answers any query, even after its dimension was fixed.
	if s.records.Len() == 0 {
		return []Result{}, nil
	}
	if err := s.records.ValidateQuery(target); err != nil {
		return nil, err
	}

	cands, err := searcher.Search(ctx, s.records.Vectors(), candidates(), target, topN, searcher.Options{
		Parallelism: s.opts.parallelism,
		Resources:   s.opts.resources,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(cands))
	for i, c := range cands {
		results[i] = Result{
			ID:         s.records.ID(c.Row),
			Metadata:   s.records.Metadata(c.Row).Clone(),
			Similarity: c.Score,
		}
	}
	return results, nil
}

// QueryByMetadata implements DB. An empty query returns every record.
func (s *Store) QueryByMetadata(ctx context.Context, query map[string]any) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := metadata.DocumentFromAny(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows := s.records.Filter(metadata.Equals(doc))
	out := make([]Record, 0, rows.GetCardinality())
	it := rows.Iterator()
	for it.HasNext() {
		out = append(out, s.record(it.Next()))
	}
	return out, nil
}

func (s *Store) record(row uint32) Record {
	return Record{
		ID:       s.records.ID(row),
		Vector:   s.records.Vectors().Vector(row, nil),
		Metadata: s.records.Metadata(row).Clone(),
	}
}

// GetVectorByID implements DB. Compressed stores return the decoded
// approximation.
func (s *Store) GetVectorByID(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	vec, doc, err := s.records.Get(id)
	if err != nil {
		return nil, translateError(err)
	}
	return &Record{ID: id, Vector: vec, Metadata: doc}, nil
}

// ListAllIDs implements DB.
func (s *Store) ListAllIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.records.IDs(), nil
}

// GetVectorCount implements DB.
func (s *Store) GetVectorCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.records.Len(), nil
}

// ClearDatabase implements DB. The compression width survives, since
// compression is one-way.
func (s *Store) ClearDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records.Clear()
	s.logger.InfoContext(ctx, "database cleared")
	return nil
}

// GetStats implements DB.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	bits := s.records.Bits()
	return Stats{
		StatTotalVectors:     s.records.Len(),
		StatDimension:        s.records.Dimension(),
		StatProvider:         ProviderLocal,
		StatSizeInMemoryMB:   float64(s.records.SizeBytes()) / (1 << 20),
		StatCompressionBits:  int(bits),
		StatCompressionRatio: bits.CompressionRatio(),
		StatMetadataFields:   s.records.MetadataFields(),
		StatDeletedSlots:     s.records.Deleted(),
	}, nil
}

// CompressVectors implements DB. Widths narrow one way, 32 to 16 to 8;
// requesting the current width is a no-op and a wider one fails with
// ErrInvalidCompression. At 8 bits, a later write outside the trained value
// range widens the range and re-encodes the stored vectors.
func (s *Store) CompressVectors(ctx context.Context, bits int) (float64, error) {
	start := time.Now()
	ratio, err := s.compress(ctx, bits)
	err = translateError(err)
	s.metrics.RecordCompress(bits, time.Since(start), err)
	s.logger.LogCompress(ctx, bits, ratio, err)
	return ratio, err
}

func (s *Store) compress(ctx context.Context, n int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	bits, err := quantization.ParseBits(n)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.records.Compress(bits)
}

// Close releases the store's memory reservation and closes the blob store
// when it holds resources. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.records.Release()

	if c, ok := s.persist.Store().(io.Closer); ok {
		return c.Close()
	}
	return nil
}
