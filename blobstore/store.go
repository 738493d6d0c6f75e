package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
var ErrNotFound = os.ErrNotExist

// ErrClosed is returned when writing to a finished WritableBlob.
var ErrClosed = errors.New("blob already closed")

// BlobStore is a flat namespace of immutable blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create starts writing a blob. The blob replaces any existing blob of the
	// same name when Close succeeds; Abort discards it.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a whole blob at once.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Missing blobs return ErrNotFound.
	Delete(ctx context.Context, name string) error

	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer

	// ReadAt reads len(p) bytes at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// ReadRange streams length bytes starting at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob under construction.
type WritableBlob interface {
	io.WriteCloser

	// Sync flushes buffered data to durable storage where supported.
	Sync() error

	// Abort discards everything written. Calling Abort after Close is a no-op.
	Abort() error
}

// ReadAll reads a whole blob.
func ReadAll(ctx context.Context, s BlobStore, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

