package vecstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecstore/internal/recordstore"
	"github.com/hupe1980/vecstore/internal/searcher"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/quantization"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/vectorstore"
)

// Error classes. Every error returned by a DB matches at most one of them
// with errors.Is.
var (
	// ErrNotFound is returned for unknown ids on get, update and delete.
	ErrNotFound = errors.New("vector not found")

	// ErrDimension is matched by every *ErrDimensionMismatch.
	ErrDimension = errors.New("dimension mismatch")

	// ErrOperation is the class of rejected operations: bad arguments,
	// corrupt snapshots, exhausted limits.
	ErrOperation = errors.New("vector db operation failed")

	// ErrConnection is returned by network-backed implementations when the
	// backend cannot be reached. The local store never returns it.
	ErrConnection = errors.New("vector db connection failed")

	// ErrNotImplemented is returned by implementations that decline an
	// optional capability, such as compression on a remote backend.
	ErrNotImplemented = errors.New("not implemented")
)

// Operation errors. All of them match ErrOperation.
var (
	ErrInvalidK              = fmt.Errorf("%w: top n must be positive", ErrOperation)
	ErrInvalidVector         = fmt.Errorf("%w: invalid vector", ErrOperation)
	ErrInvalidID             = fmt.Errorf("%w: invalid id", ErrOperation)
	ErrInvalidMetadata       = fmt.Errorf("%w: invalid metadata", ErrOperation)
	ErrInvalidFilter         = fmt.Errorf("%w: invalid filter", ErrOperation)
	ErrInvalidCompression    = fmt.Errorf("%w: invalid compression width", ErrOperation)
	ErrCorruptSnapshot       = fmt.Errorf("%w: corrupt snapshot", ErrOperation)
	ErrCollectionNotFound    = fmt.Errorf("%w: collection not found", ErrOperation)
	ErrInvalidCollectionName = fmt.Errorf("%w: invalid collection name", ErrOperation)
	ErrMemoryLimit           = fmt.Errorf("%w: memory limit exceeded", ErrOperation)
	ErrLimitExceeded         = fmt.Errorf("%w: validation limit exceeded", ErrOperation)
	ErrNoEmbedder            = fmt.Errorf("%w: no embedder", ErrOperation)
	ErrClosed                = fmt.Errorf("%w: store is closed", ErrOperation)
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// Is makes every mismatch match ErrDimension.
func (e *ErrDimensionMismatch) Is(target error) bool { return target == ErrDimension }

// ErrIncompatibleSnapshot is returned when loading a snapshot whose dimension
// differs from the dimension already fixed in the store. It matches
// ErrOperation.
type ErrIncompatibleSnapshot struct {
	Collection string
	Expected   int
	Actual     int
}

func (e *ErrIncompatibleSnapshot) Error() string {
	return fmt.Sprintf("incompatible snapshot %q: store dimension %d, snapshot dimension %d", e.Collection, e.Expected, e.Actual)
}

// Is makes the error match ErrOperation.
func (e *ErrIncompatibleSnapshot) Is(target error) bool { return target == ErrOperation }

// BatchError reports the first failing item of AddVectorsBatch. Items before
// Index were committed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsNotImplemented reports whether err means the backend declined the
// operation, so callers can skip it.
func IsNotImplemented(err error) bool { return errors.Is(err, ErrNotImplemented) }

func classified(err error) bool {
	return errors.Is(err, ErrOperation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDimension) ||
		errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrNotImplemented)
}

// translateError maps internal package errors onto the public taxonomy.
func translateError(err error) error {
	if err == nil || classified(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var dm *recordstore.DimensionError
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	for _, m := range []struct {
		internal error
		public   error
	}{
		{recordstore.ErrNotFound, ErrNotFound},
		{recordstore.ErrInvalidVector, ErrInvalidVector},
		{recordstore.ErrInvalidID, ErrInvalidID},
		{searcher.ErrInvalidK, ErrInvalidK},
		{resource.ErrMemoryLimit, ErrMemoryLimit},
		{quantization.ErrUnsupportedBits, ErrInvalidCompression},
		{vectorstore.ErrWiderEncoding, ErrInvalidCompression},
		{persistence.ErrCollectionNotFound, ErrCollectionNotFound},
		{persistence.ErrInvalidCollectionName, ErrInvalidCollectionName},
		{persistence.ErrCorruptSnapshot, ErrCorruptSnapshot},
		{persistence.ErrUnsupportedVersion, ErrCorruptSnapshot},
		{metadata.ErrInvalidFilter, ErrInvalidFilter},
		{metadata.ErrInvalidValue, ErrInvalidMetadata},
	} {
		if errors.Is(err, m.internal) {
			return fmt.Errorf("%w: %w", m.public, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrOperation, err)
}
