package vecstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/vecstore/internal/recordstore"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/resource"
)

// SaveToDisk implements DB. Records are captured under the read lock and
// written afterwards, so writers are blocked only for the capture. The
// previous snapshot of the collection survives a failed save.
func (s *Store) SaveToDisk(ctx context.Context, collection string) error {
	start := time.Now()
	n, err := s.save(ctx, collection)
	err = translateError(err)
	s.metrics.RecordSnapshot(SnapshotSave, time.Since(start), err)
	s.logger.LogSnapshot(ctx, collection, n, err)
	return err
}

func (s *Store) save(ctx context.Context, collection string) (int, error) {
	if err := persistence.ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	snap := s.records.Snapshot()
	s.mu.RUnlock()

	return len(snap.Records), s.persist.Save(ctx, collection, snap)
}

// LoadFromDisk implements DB. The snapshot is decoded and indexed before the
// write lock is taken; the swap itself is atomic. A store whose dimension is
// fixed only accepts snapshots of the same dimension.
func (s *Store) LoadFromDisk(ctx context.Context, collection string) error {
	start := time.Now()
	n, err := s.load(ctx, collection)
	err = translateError(err)
	s.metrics.RecordSnapshot(SnapshotLoad, time.Since(start), err)
	s.logger.LogLoad(ctx, collection, n, err)
	return err
}

func (s *Store) load(ctx context.Context, collection string) (int, error) {
	snap, err := s.persist.Load(ctx, collection)
	if err != nil {
		return 0, err
	}

	fresh, err := recordstore.FromSnapshot(snap, s.recordOptions())
	if err != nil {
		if errors.Is(err, resource.ErrMemoryLimit) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %q: %w", ErrCorruptSnapshot, collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		fresh.Release()
		return 0, ErrClosed
	}
	if d := s.records.Dimension(); d > 0 && snap.Dimension > 0 && d != snap.Dimension {
		fresh.Release()
		return 0, &ErrIncompatibleSnapshot{Collection: collection, Expected: d, Actual: snap.Dimension}
	}

	s.records.Release()
	s.records = fresh
	return fresh.Len(), nil
}

// ListCollections returns the saved collection names, sorted.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.persist.List(ctx)
	return names, translateError(err)
}

// DeleteCollection removes a saved collection. Missing collections fail with
// ErrCollectionNotFound.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	err := translateError(s.persist.Delete(ctx, collection))
	if err == nil {
		s.logger.InfoContext(ctx, "collection deleted", "collection", collection)
	}
	return err
}
