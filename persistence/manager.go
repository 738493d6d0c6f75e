package persistence

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/resource"
)

// Extension is appended to a collection name to form its blob name.
const Extension = ".vstore"

const maxCollectionName = 128

var (
	// ErrCollectionNotFound is returned when no snapshot exists for a collection.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidCollectionName is returned for names outside [A-Za-z0-9._-].
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

var collectionNameRE = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// ValidateCollectionName rejects empty names, names with path separators and
// names starting with a dot.
func ValidateCollectionName(name string) error {
	if len(name) > maxCollectionName || !collectionNameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// BlobName returns the blob holding a collection's snapshot.
func BlobName(collection string) string { return collection + Extension }

// Manager saves and loads collection snapshots in a BlobStore.
//
// Manager itself holds no mutable state and is safe for concurrent use; a
// local blob store serializes writers of the same collection with a file lock.
type Manager struct {
	store       blobstore.BlobStore
	codec       codec.Codec
	compression Compression
	rc          *resource.Controller
}

// Option configures a Manager.
type Option func(*Manager)

// WithCodec sets the metadata codec for new snapshots.
func WithCodec(c codec.Codec) Option {
	return func(m *Manager) {
		if c != nil {
			m.codec = c
		}
	}
}

// WithCompression sets the body compression for new snapshots.
func WithCompression(c Compression) Option {
	return func(m *Manager) { m.compression = c }
}

// WithResourceController throttles snapshot IO through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(m *Manager) { m.rc = rc }
}

// NewManager creates a manager over store. Snapshots default to the
// go-json codec and LZ4 body compression.
func NewManager(store blobstore.BlobStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		codec:       codec.Default,
		compression: CompressionLZ4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying blob store.
func (m *Manager) Store() blobstore.BlobStore { return m.store }

// Save writes snap as the collection's snapshot, replacing any previous one.
// The previous snapshot stays intact if Save fails.
func (m *Manager) Save(ctx context.Context, collection string, snap *Snapshot) (err error) {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	w, err := m.store.Create(ctx, BlobName(collection))
	if err != nil {
		return fmt.Errorf("create snapshot %q: %w", collection, err)
	}
	defer func() {
		if err != nil {
			_ = w.Abort()
		}
	}()

	bw := bufio.NewWriterSize(resource.NewRateLimitedWriter(ctx, w, m.rc), 256*1024)
	if err := WriteSnapshot(bw, snap, WriteOptions{Codec: m.codec, Compression: m.compression}); err != nil {
		return fmt.Errorf("write snapshot %q: %w", collection, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write snapshot %q: %w", collection, err)
	}
	if err := w.Sync(); err != nil {
		return fmt.Errorf("sync snapshot %q: %w", collection, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit snapshot %q: %w", collection, err)
	}
	return nil
}

// Load reads the collection's snapshot.
func (m *Manager) Load(ctx context.Context, collection string) (*Snapshot, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	blob, err := m.store.Open(ctx, BlobName(collection))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
		}
		return nil, fmt.Errorf("open snapshot %q: %w", collection, err)
	}
	defer func() { _ = blob.Close() }()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", collection, err)
	}
	defer func() { _ = rc.Close() }()

	r := bufio.NewReaderSize(resource.NewRateLimitedReader(ctx, rc, m.rc), 256*1024)
	snap, err := ReadSnapshot(r)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", collection, err)
	}
	return snap, nil
}

// List returns the names of all saved collections, sorted.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	names, err := m.store.List(ctx, "")
	if err != nil {
		return nil, err
	}

	collections := make([]string, 0, len(names))
	for _, name := range names {
		c, ok := strings.CutSuffix(name, Extension)
		if !ok || ValidateCollectionName(c) != nil {
			continue
		}
		collections = append(collections, c)
	}
	slices.Sort(collections)
	return collections, nil
}

// Delete removes the collection's snapshot.
func (m *Manager) Delete(ctx context.Context, collection string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, BlobName(collection)); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
		}
		return err
	}
	return nil
}
