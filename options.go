package vecstore

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/resource"
)

// DefaultDataDir is where snapshots go when neither WithBlobStore nor
// WithDataDir is given.
const DefaultDataDir = "vecstore_data"

// Limits bounds what a Store accepts. Zero fields are unlimited.
type Limits struct {
	MaxDimension     int // components per vector
	MaxIDLength      int // bytes per id
	MaxBatchSize     int // items per AddVectorsBatch call
	MaxTopN          int // results per search
	MaxMetadataBytes int // encoded metadata per record
}

// DefaultLimits catch obvious mistakes without getting in the way.
var DefaultLimits = Limits{
	MaxDimension:     65536,
	MaxIDLength:      1024,
	MaxBatchSize:     100_000,
	MaxTopN:          10_000,
	MaxMetadataBytes: 64 << 10,
}

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	blobStore        blobstore.BlobStore
	dataDir          string
	codec            codec.Codec
	compression      persistence.Compression
	resources        *resource.Controller
	parallelism      int
	limits           Limits
	newID            func() string
}

// Option configures a Store.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecstore.NewJSONLogger(slog.LevelInfo)
//	db, _ := vecstore.New(vecstore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecstore.BasicMetricsCollector{}
//	db := vecstore.New(vecstore.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.Insert.Count, stats.Insert.AvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithBlobStore sets where snapshots are saved. It takes precedence over
// WithDataDir.
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobStore = store
	}
}

// WithDataDir stores snapshots as files in dir.
func WithDataDir(dir string) Option {
	return func(o *options) {
		o.dataDir = dir
	}
}

// WithCodec configures the codec used to encode snapshot metadata.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithSnapshotCompression selects the snapshot body compression.
func WithSnapshotCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithResourceController enables memory accounting, a shared search worker
// cap and snapshot IO throttling.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithSearchParallelism caps the goroutines scoring one query.
// Zero means GOMAXPROCS; 1 scores sequentially.
func WithSearchParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithValidationLimits replaces DefaultLimits.
func WithValidationLimits(l Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithIDGenerator replaces the UUIDv4 generator used for records added
// without an id.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn == nil {
			fn = uuid.NewString
		}
		o.newID = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		dataDir:          DefaultDataDir,
		codec:            codec.Default,
		compression:      persistence.CompressionLZ4,
		limits:           DefaultLimits,
		newID:            uuid.NewString,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.blobStore == nil {
		o.blobStore = blobstore.NewLocalStore(o.dataDir)
	}
	return o
}

// WriteOption configures a single insert or update.
type WriteOption func(*WriteOptions)

// WriteOptions is the resolved form of a WriteOption list. DB
// implementations read it through ApplyWriteOptions.
type WriteOptions struct {
	ID        string
	Normalize bool
}

// WithID assigns the record id instead of generating one. Adding an id that
// already exists replaces that record in place.
func WithID(id string) WriteOption {
	return func(o *WriteOptions) {
		o.ID = id
	}
}

// WithNormalize stores the vector scaled to unit length. Zero vectors stay
// zero.
func WithNormalize() WriteOption {
	return func(o *WriteOptions) {
		o.Normalize = true
	}
}

// ApplyWriteOptions resolves opts. Nil entries are skipped.
func ApplyWriteOptions(opts []WriteOption) WriteOptions {
	var o WriteOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
