// Package provider opens the vecstore.DB selected by a config.Config.
package provider

import (
	"context"
	"fmt"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/blobstore/minio"
	"github.com/hupe1980/vecstore/blobstore/s3"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/config"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/remote/dynamodb"
	"github.com/hupe1980/vecstore/resource"
)

type options struct {
	logger  *vecstore.Logger
	metrics vecstore.MetricsCollector
	local   []vecstore.Option
	remote  []dynamodb.Option
}

// Option configures Open.
type Option func(*options)

// WithLogger overrides the text logger built from Config.LogLevel.
func WithLogger(l *vecstore.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetricsCollector sets the metrics sink of either provider.
func WithMetricsCollector(mc vecstore.MetricsCollector) Option {
	return func(o *options) { o.metrics = mc }
}

// WithLocalOptions appends options for the local store. They are applied
// after the ones derived from the config.
func WithLocalOptions(opts ...vecstore.Option) Option {
	return func(o *options) { o.local = append(o.local, opts...) }
}

// WithDynamoDBOptions appends options for the DynamoDB store.
func WithDynamoDBOptions(opts ...dynamodb.Option) Option {
	return func(o *options) { o.remote = append(o.remote, opts...) }
}

// Open builds the DB named by cfg.Provider. Close it when done. Invalid
// configuration, including a blob or DynamoDB client that cannot be built
// from it, fails with vecstore.ErrOperation.
func Open(ctx context.Context, cfg *config.Config, optFns ...Option) (vecstore.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", vecstore.ErrOperation, err)
	}

	var o options
	for _, fn := range optFns {
		fn(&o)
	}
	if o.logger == nil {
		level, _ := cfg.SlogLevel()
		o.logger = vecstore.NewTextLogger(level)
	}
	if o.metrics == nil {
		o.metrics = vecstore.NoopMetricsCollector{}
	}

	// Each branch returns a literal nil on failure so callers never see a
	// non-nil DB wrapping a nil store.
	switch cfg.Provider {
	case config.ProviderDynamoDB:
		db, err := openDynamoDB(ctx, cfg.DynamoDB, &o)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		db, err := openLocal(ctx, &cfg.Local, &o)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func openLocal(ctx context.Context, cfg *config.LocalConfig, o *options) (*vecstore.Store, error) {
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vecstore.ErrOperation, err)
	}
	compression, err := persistence.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vecstore.ErrOperation, err)
	}
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []vecstore.Option{
		vecstore.WithLogger(o.logger),
		vecstore.WithMetricsCollector(o.metrics),
		vecstore.WithCodec(c),
		vecstore.WithSnapshotCompression(compression),
		vecstore.WithBlobStore(blobs),
		vecstore.WithSearchParallelism(cfg.SearchParallelism),
	}
	if cfg.MemoryLimitBytes > 0 || cfg.IOLimitBytesPerSec > 0 || cfg.MaxSearchWorkers > 0 {
		opts = append(opts, vecstore.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.MemoryLimitBytes,
			MaxSearchWorkers:   cfg.MaxSearchWorkers,
			IOLimitBytesPerSec: cfg.IOLimitBytesPerSec,
		})))
	}
	return vecstore.New(append(opts, o.local...)...), nil
}

func openBlobStore(ctx context.Context, cfg *config.LocalConfig) (blobstore.BlobStore, error) {
	b := cfg.Blob
	switch b.Backend {
	case config.BlobS3:
		store, err := s3.New(ctx, b.Bucket,
			s3.WithPrefix(b.Prefix),
			s3.WithRegion(b.Region),
			s3.WithEndpoint(b.Endpoint),
			s3.WithPathStyle(b.PathStyle),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", vecstore.ErrOperation, err)
		}
		return store, nil
	case config.BlobMinIO:
		mopts := []minio.Option{
			minio.WithSecure(b.Secure),
			minio.WithRegion(b.Region),
			minio.WithPrefix(b.Prefix),
		}
		if b.AccessKey != "" {
			mopts = append(mopts, minio.WithCredentials(b.AccessKey, b.SecretKey))
		}
		store, err := minio.New(b.Endpoint, b.Bucket, mopts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", vecstore.ErrOperation, err)
		}
		return store, nil
	default:
		return blobstore.NewLocalStore(cfg.DataDir), nil
	}
}

func openDynamoDB(ctx context.Context, cfg config.DynamoDBConfig, o *options) (*dynamodb.Store, error) {
	opts := []dynamodb.Option{
		dynamodb.WithNamespace(cfg.Namespace),
		dynamodb.WithRegion(cfg.Region),
		dynamodb.WithEndpoint(cfg.Endpoint),
		dynamodb.WithLogger(o.logger),
		dynamodb.WithMetricsCollector(o.metrics),
	}
	return dynamodb.New(ctx, cfg.Table, append(opts, o.remote...)...)
}
