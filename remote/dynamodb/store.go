package dynamodb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/internal/searcher"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/vectorstore"
)

// Provider is the StatProvider value reported by Store.
const Provider = "dynamodb"

// DefaultNamespace is the partition used when WithNamespace is not given.
const DefaultNamespace = "default"

const (
	// batchWriteLimit is the most requests one BatchWriteItem call accepts.
	batchWriteLimit = 25
	maxBatchRetries = 5
	maxIDAttempts   = 16
)

// Client is the subset of the DynamoDB API used by Store. *dynamodb.Client
// satisfies it.
type Client interface {
	ddb.QueryAPIClient
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *ddb.BatchWriteItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error)
}

// Store implements vecstore.DB over one namespace of a DynamoDB table.
// It holds no record state, so any number of Stores may share a namespace.
type Store struct {
	client    Client
	table     string
	namespace string

	codec   codec.Codec
	limits  vecstore.Limits
	newID   func() string
	logger  *vecstore.Logger
	metrics vecstore.MetricsCollector

	closed atomic.Bool
}

var _ vecstore.DB = (*Store)(nil)

type options struct {
	namespace string
	region    string
	endpoint  string
	codec     codec.Codec
	limits    vecstore.Limits
	newID     func() string
	logger    *vecstore.Logger
	metrics   vecstore.MetricsCollector
}

// Option configures New and NewStore.
type Option func(*options)

// WithNamespace selects the partition holding the records. It must be
// non-empty and must not contain '#'.
func WithNamespace(ns string) Option { return func(o *options) { o.namespace = ns } }

// WithRegion overrides the region from the default AWS config chain.
func WithRegion(region string) Option { return func(o *options) { o.region = region } }

// WithEndpoint points the client at a DynamoDB-compatible endpoint such as
// DynamoDB Local.
func WithEndpoint(endpoint string) Option { return func(o *options) { o.endpoint = endpoint } }

// WithCodec sets the metadata encoding. Nil keeps codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithValidationLimits replaces vecstore.DefaultLimits.
func WithValidationLimits(l vecstore.Limits) Option { return func(o *options) { o.limits = l } }

// WithIDGenerator replaces the UUID generator. Nil keeps the default.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(l *vecstore.Logger) Option {
	return func(o *options) {
		if l == nil {
			l = vecstore.NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics sink. Nil disables metrics.
func WithMetricsCollector(mc vecstore.MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = vecstore.NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		namespace: DefaultNamespace,
		codec:     codec.Default,
		limits:    vecstore.DefaultLimits,
		newID:     uuid.NewString,
		logger:    vecstore.NoopLogger(),
		metrics:   vecstore.NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// New builds a Store from the default AWS configuration chain.
func New(ctx context.Context, table string, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)

	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", vecstore.ErrOperation, err)
	}

	client := ddb.NewFromConfig(cfg, func(do *ddb.Options) {
		if o.endpoint != "" {
			do.BaseEndpoint = aws.String(o.endpoint)
		}
	})
	return newStore(client, table, o)
}

// NewStore creates a Store over an existing client.
func NewStore(client Client, table string, optFns ...Option) (*Store, error) {
	return newStore(client, table, applyOptions(optFns))
}

func newStore(client Client, table string, o options) (*Store, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: empty table name", vecstore.ErrOperation)
	}
	if o.namespace == "" || strings.Contains(o.namespace, "#") {
		return nil, fmt.Errorf("%w: invalid namespace %q", vecstore.ErrOperation, o.namespace)
	}
	return &Store{
		client:    client,
		table:     table,
		namespace: o.namespace,
		codec:     o.codec,
		limits:    o.limits,
		newID:     o.newID,
		logger:    o.logger.WithProvider(Provider).WithCollection(o.namespace),
		metrics:   o.metrics,
	}, nil
}

// AddVector implements vecstore.DB.
func (s *Store) AddVector(ctx context.Context, vector []float32, md map[string]any, opts ...vecstore.WriteOption) (string, error) {
	start := time.Now()
	wo := vecstore.ApplyWriteOptions(opts)
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
	if err := s.check(ctx); err != nil {
		return id, err
	}
	doc, err := s.document(md)
	if err != nil {
		return id, err
	}
	return s.put(ctx, id, vector, doc, normalize)
}

// AddVectorsBatch implements vecstore.DB. Items are written one by one; the
// first failure stops the batch and earlier items stay committed.
func (s *Store) AddVectorsBatch(ctx context.Context, items []vecstore.BatchItem, opts ...vecstore.WriteOption) ([]string, error) {
	start := time.Now()
	wo := vecstore.ApplyWriteOptions(opts)
	ids, err := s.addBatch(ctx, items, wo.Normalize)
	err = translateError(err)
	s.metrics.RecordBatchInsert(len(items), len(items)-len(ids), time.Since(start))
	s.logger.LogBatchInsert(ctx, len(items), len(ids), err)
	return ids, err
}

func (s *Store) addBatch(ctx context.Context, items []vecstore.BatchItem, normalize bool) ([]string, error) {
	if limit := s.limits.MaxBatchSize; limit > 0 && len(items) > limit {
		return nil, fmt.Errorf("%w: batch of %d exceeds %d", vecstore.ErrLimitExceeded, len(items), limit)
	}

	ids := make([]string, 0, len(items))
	for i := range items {
		id, err := s.addVector(ctx, items[i].ID, items[i].Vector, items[i].Metadata, normalize)
		if err != nil {
			return ids, &vecstore.BatchError{Index: i, Err: translateError(err)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddTextWithEmbedding implements vecstore.DB. md is not modified.
func (s *Store) AddTextWithEmbedding(ctx context.Context, text string, embedding []float32, md map[string]any, opts ...vecstore.WriteOption) (string, error) {
	withText := make(map[string]any, len(md)+1)
	maps.Copy(withText, md)
	withText[vecstore.TextKey] = text
	return s.AddVector(ctx, embedding, withText, opts...)
}

// put stores one record. An existing id keeps its sequence number, a new one
// reserves the next.
func (s *Store) put(ctx context.Context, id string, vector []float32, doc metadata.Document, normalize bool) (string, error) {
	if err := s.validateVector(vector); err != nil {
		return id, err
	}
	if normalize {
		if unit, ok := distance.NormalizeL2Copy(vector); ok {
			vector = unit
		}
	}

	if id != "" {
		if err := s.validateID(id); err != nil {
			return id, err
		}
		return id, s.write(ctx, &record{id: id, vec: vector, doc: doc}, false)
	}

	for range maxIDAttempts {
		id := s.newID()
		if id == "" || s.validateID(id) != nil {
			continue
		}
		err := s.write(ctx, &record{id: id, vec: vector, doc: doc}, true)
		if !isConditionFailed(err) {
			return id, err
		}
	}
	return "", fmt.Errorf("%w: generator returned no unused id in %d attempts", vecstore.ErrInvalidID, maxIDAttempts)
}

// write claims a sequence number for r and puts it. With fresh set the put
// fails with a condition error when the id is taken.
func (s *Store) write(ctx context.Context, r *record, fresh bool) error {
	n := int64(1)
	if !fresh {
		old, err := s.get(ctx, r.id, attrSeq)
		if err != nil {
			return err
		}
		if old != nil {
			seq, err := numberAttr(old, attrSeq)
			if err != nil {
				return err
			}
			r.seq, n = seq, 0
		}
	}

	last, err := s.claim(ctx, len(r.vec), n)
	if err != nil {
		return err
	}
	if n > 0 {
		r.seq = last
	}

	item, err := s.encode(r)
	if err != nil {
		return err
	}
	in := &ddb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if fresh {
		in.ConditionExpression = aws.String("attribute_not_exists(#sk)")
		in.ExpressionAttributeNames = map[string]string{"#sk": attrSK}
	}
	_, err = s.client.PutItem(ctx, in)
	return err
}

// claim fixes the namespace dimension on first use and reserves n sequence
// numbers. It returns the highest reserved number.
func (s *Store) claim(ctx context.Context, dim int, n int64) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &ddb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.metaKey(),
		UpdateExpression:    aws.String("SET #dim = if_not_exists(#dim, :dim) ADD #seq :n"),
		ConditionExpression: aws.String("attribute_not_exists(#dim) OR #dim = :dim"),
		ExpressionAttributeNames: map[string]string{
			"#dim": attrDim,
			"#seq": attrNextSeq,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dim": numberValue(int64(dim)),
			":n":   numberValue(n),
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			expected, _ := numberAttr(ccf.Item, attrDim)
			return 0, &vecstore.ErrDimensionMismatch{Expected: int(expected), Actual: dim}
		}
		return 0, err
	}
	return numberAttr(out.Attributes, attrNextSeq)
}

// get returns the raw item for id, or nil when it does not exist.
func (s *Store) get(ctx context.Context, id string, projection ...string) (map[string]types.AttributeValue, error) {
	in := &ddb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	}
	if len(projection) > 0 {
		names := make(map[string]string, len(projection))
		refs := make([]string, len(projection))
		for i, p := range projection {
			refs[i] = "#" + p
			names[refs[i]] = p
		}
		in.ProjectionExpression = aws.String(strings.Join(refs, ", "))
		in.ExpressionAttributeNames = names
	}
	out, err := s.client.GetItem(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func (s *Store) document(md map[string]any) (metadata.Document, error) {
	doc, err := metadata.DocumentFromAny(md)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vecstore.ErrInvalidMetadata, err)
	}
	if len(doc) == 0 {
		return doc, nil
	}
	data, err := s.codec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vecstore.ErrInvalidMetadata, err)
	}
	if limit := s.limits.MaxMetadataBytes; limit > 0 && len(data) > limit {
		return nil, fmt.Errorf("%w: metadata encodes to %d bytes, limit %d", vecstore.ErrLimitExceeded, len(data), limit)
	}
	return doc, nil
}

func (s *Store) validateVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", vecstore.ErrInvalidVector)
	}
	if limit := s.limits.MaxDimension; limit > 0 && len(v) > limit {
		return fmt.Errorf("%w: dimension %d exceeds limit %d", vecstore.ErrInvalidVector, len(v), limit)
	}
	if !distance.IsFinite(v) {
		return fmt.Errorf("%w: non-finite component", vecstore.ErrInvalidVector)
	}
	return nil
}

func (s *Store) validateID(id string) error {
	if limit := s.limits.MaxIDLength; limit > 0 && len(id) > limit {
		return fmt.Errorf("%w: id of %d bytes exceeds %d", vecstore.ErrInvalidID, len(id), limit)
	}
	return nil
}

// DeleteVector implements vecstore.DB.
func (s *Store) DeleteVector(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	err := translateError(s.deleteVector(ctx, id))
	s.metrics.RecordDelete(time.Since(start), err)
	s.logger.LogDelete(ctx, id, err)
	return err == nil, err
}

func (s *Store) deleteVector(ctx context.Context, id string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(ctx, &ddb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.key(id),
		ConditionExpression:      aws.String("attribute_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{"#sk": attrSK},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %q", vecstore.ErrNotFound, id)
	}
	return err
}

// UpdateVector implements vecstore.DB. A non-nil but empty md clears the
// metadata.
func (s *Store) UpdateVector(ctx context.Context, id string, vector []float32, md map[string]any, opts ...vecstore.WriteOption) (bool, error) {
	start := time.Now()
	wo := vecstore.ApplyWriteOptions(opts)
	err := translateError(s.updateVector(ctx, id, vector, md, wo.Normalize))
	s.metrics.RecordUpdate(time.Since(start), err)
	s.logger.LogUpdate(ctx, id, err)
	return err == nil, err
}

func (s *Store) updateVector(ctx context.Context, id string, vector []float32, md map[string]any, normalize bool) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var doc metadata.Document
	if md != nil {
		var err error
		if doc, err = s.document(md); err != nil {
			return err
		}
	}

	item, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: %q", vecstore.ErrNotFound, id)
	}
	r, err := s.decode(item)
	if err != nil {
		return err
	}

	if vector != nil {
		if err := s.validateVector(vector); err != nil {
			return err
		}
		if len(vector) != len(r.vec) {
			return &vecstore.ErrDimensionMismatch{Expected: len(r.vec), Actual: len(vector)}
		}
		if normalize {
			if unit, ok := distance.NormalizeL2Copy(vector); ok {
				vector = unit
			}
		}
		r.vec = vector
	}
	if md != nil {
		r.doc = doc
	}

	if item, err = s.encode(r); err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &ddb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{"#sk": attrSK},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %q", vecstore.ErrNotFound, id)
	}
	return err
}

// TopCosineSimilarity implements vecstore.DB.
func (s *Store) TopCosineSimilarity(ctx context.Context, target []float32, topN int, filter vecstore.FilterFunc) ([]vecstore.Result, error) {
	start := time.Now()
	results, err := s.search(ctx, target, topN, filter)
	err = translateError(err)
	s.metrics.RecordSearch(topN, time.Since(start), err)
	s.logger.LogSearch(ctx, topN, len(results), err)
	return results, err
}

// SearchWithFilterSet is TopCosineSimilarity with a declarative filter.
func (s *Store) SearchWithFilterSet(ctx context.Context, target []float32, topN int, fs *metadata.FilterSet) ([]vecstore.Result, error) {
	if err := fs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", vecstore.ErrInvalidFilter, err)
	}
	return s.TopCosineSimilarity(ctx, target, topN, func(_ string, doc metadata.Document) bool {
		return fs.Matches(doc)
	})
}

// SearchByText implements vecstore.DB.
func (s *Store) SearchByText(ctx context.Context, text string, embedder vecstore.Embedder, topN int, filter vecstore.FilterFunc) ([]vecstore.Result, error) {
	if embedder == nil {
		return nil, vecstore.ErrNoEmbedder
	}
	query, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", vecstore.ErrOperation, err)
	}
	return s.TopCosineSimilarity(ctx, query, topN, filter)
}

func (s *Store) search(ctx context.Context, target []float32, topN int, filter vecstore.FilterFunc) ([]vecstore.Result, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("%w: got %d", vecstore.ErrInvalidK, topN)
	}
	if limit := s.limits.MaxTopN; limit > 0 && topN > limit {
		return nil, fmt.Errorf("%w: top n %d exceeds %d", vecstore.ErrLimitExceeded, topN, limit)
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	recs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []vecstore.Result{}, nil
	}

	dim := len(recs[0].vec)
	if len(target) != dim {
		return nil, &vecstore.ErrDimensionMismatch{Expected: dim, Actual: len(target)}
	}
	if !distance.IsFinite(target) {
		return nil, fmt.Errorf("%w: non-finite component", vecstore.ErrInvalidVector)
	}

	col := vectorstore.New(dim)
	rows := roaring.New()
	for i, r := range recs {
		if len(r.vec) != dim {
			return nil, fmt.Errorf("%w: %q has dimension %d, want %d", errMalformedItem, r.id, len(r.vec), dim)
		}
		if _, err := col.Append(r.vec); err != nil {
			return nil, err
		}
		if filter == nil || filter(r.id, r.doc) {
			rows.Add(uint32(i))
		}
	}

	cands, err := searcher.Search(ctx, col, rows, target, topN, searcher.Options{})
	if err != nil {
		return nil, err
	}
	results := make([]vecstore.Result, len(cands))
	for i, c := range cands {
		r := recs[c.Row]
		results[i] = vecstore.Result{ID: r.id, Metadata: r.doc, Similarity: c.Score}
	}
	return results, nil
}

// QueryByMetadata implements vecstore.DB. An empty query returns every record.
func (s *Store) QueryByMetadata(ctx context.Context, query map[string]any) ([]vecstore.Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	doc, err := metadata.DocumentFromAny(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vecstore.ErrInvalidFilter, err)
	}
	fs := metadata.Equals(doc)

	recs, err := s.scan(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]vecstore.Record, 0, len(recs))
	for _, r := range recs {
		if fs.Matches(r.doc) {
			out = append(out, vecstore.Record{ID: r.id, Vector: r.vec, Metadata: r.doc})
		}
	}
	return out, nil
}

// GetVectorByID implements vecstore.DB.
func (s *Store) GetVectorByID(ctx context.Context, id string) (*vecstore.Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	item, err := s.get(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %q", vecstore.ErrNotFound, id)
	}
	r, err := s.decode(item)
	if err != nil {
		return nil, err
	}
	return &vecstore.Record{ID: r.id, Vector: r.vec, Metadata: r.doc}, nil
}

// ListAllIDs implements vecstore.DB.
func (s *Store) ListAllIDs(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	recs, err := s.scan(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.id
	}
	return ids, nil
}

// GetVectorCount implements vecstore.DB.
func (s *Store) GetVectorCount(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n, err := s.count(ctx)
	return n, translateError(err)
}

// ClearDatabase implements vecstore.DB. It deletes every record and the meta
// item, so the next insert may pick a new dimension.
func (s *Store) ClearDatabase(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	var keys []map[string]types.AttributeValue
	err := s.query(ctx, func(in *ddb.QueryInput) {
		in.ProjectionExpression = aws.String("#pk, #sk")
		in.ExpressionAttributeNames["#sk"] = attrSK
	}, func(page *ddb.QueryOutput) error {
		for _, item := range page.Items {
			keys = append(keys, map[string]types.AttributeValue{
				attrPK: item[attrPK],
				attrSK: item[attrSK],
			})
		}
		return nil
	})
	if err != nil {
		return translateError(err)
	}
	keys = append(keys, s.metaKey())

	if err := s.deleteKeys(ctx, keys); err != nil {
		return translateError(err)
	}
	s.logger.InfoContext(ctx, "database cleared", "records", len(keys)-1)
	return nil
}

func (s *Store) deleteKeys(ctx context.Context, keys []map[string]types.AttributeValue) error {
	for chunk := range slices.Chunk(keys, batchWriteLimit) {
		reqs := make([]types.WriteRequest, len(chunk))
		for i, k := range chunk {
			reqs[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}}
		}

		for attempt := 0; len(reqs) > 0; attempt++ {
			if attempt > maxBatchRetries {
				return fmt.Errorf("%w: %d deletes still unprocessed", vecstore.ErrOperation, len(reqs))
			}
			if attempt > 0 {
				if err := sleep(ctx, time.Duration(attempt)*50*time.Millisecond); err != nil {
					return err
				}
			}
			out, err := s.client.BatchWriteItem(ctx, &ddb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.table: reqs},
			})
			if err != nil {
				return err
			}
			reqs = out.UnprocessedItems[s.table]
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetStats implements vecstore.DB.
func (s *Store) GetStats(ctx context.Context) (vecstore.Stats, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	n, err := s.count(ctx)
	if err != nil {
		return nil, translateError(err)
	}

	out, err := s.client.GetItem(ctx, &ddb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.metaKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, translateError(err)
	}
	var dim int64
	if len(out.Item) > 0 {
		if dim, err = numberAttr(out.Item, attrDim); err != nil {
			return nil, err
		}
	}

	return vecstore.Stats{
		vecstore.StatTotalVectors:     n,
		vecstore.StatDimension:        int(dim),
		vecstore.StatProvider:         Provider,
		vecstore.StatCompressionBits:  32,
		vecstore.StatCompressionRatio: 1.0,
	}, nil
}

// SaveToDisk is not supported; the table is already durable.
func (s *Store) SaveToDisk(context.Context, string) error {
	return fmt.Errorf("%w: %s has no snapshots", vecstore.ErrNotImplemented, Provider)
}

// LoadFromDisk is not supported.
func (s *Store) LoadFromDisk(context.Context, string) error {
	return fmt.Errorf("%w: %s has no snapshots", vecstore.ErrNotImplemented, Provider)
}

// CompressVectors is not supported; items always hold float32 vectors.
func (s *Store) CompressVectors(context.Context, int) (float64, error) {
	return 0, fmt.Errorf("%w: %s does not compress vectors", vecstore.ErrNotImplemented, Provider)
}

// Close marks the store closed. The client needs no cleanup.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return vecstore.ErrClosed
	}
	return nil
}

// scan reads every record of the namespace in insertion order.
func (s *Store) scan(ctx context.Context) ([]*record, error) {
	var recs []*record
	err := s.query(ctx, nil, func(page *ddb.QueryOutput) error {
		for _, item := range page.Items {
			r, err := s.decode(item)
			if err != nil {
				return err
			}
			recs = append(recs, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(recs, func(a, b *record) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return recs, nil
}

func (s *Store) count(ctx context.Context) (int, error) {
	var n int
	err := s.query(ctx, func(in *ddb.QueryInput) {
		in.Select = types.SelectCount
	}, func(page *ddb.QueryOutput) error {
		n += int(page.Count)
		return nil
	})
	return n, err
}

// query pages through the namespace partition. configure may adjust the
// input before the first page.
func (s *Store) query(ctx context.Context, configure func(*ddb.QueryInput), fn func(*ddb.QueryOutput) error) error {
	in := &ddb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": attrPK},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": stringValue(s.namespace),
		},
		ConsistentRead: aws.Bool(true),
	}
	if configure != nil {
		configure(in)
	}

	p := ddb.NewQueryPaginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// translateError classifies backend errors: service rejections are operation
// errors, anything that never got an answer is a connection error.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, class := range []error{
		vecstore.ErrNotFound,
		vecstore.ErrDimension,
		vecstore.ErrOperation,
		vecstore.ErrConnection,
		vecstore.ErrNotImplemented,
	} {
		if errors.Is(err, class) {
			return err
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %w", vecstore.ErrOperation, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%w: %w", vecstore.ErrConnection, err)
}
