package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/vecstore/internal/fs"
)

const (
	lockSuffix = ".lock"
	tempSuffix = ".tmp"
)

// ErrInvalidName is returned for blob names that are empty or contain path
// separators.
var ErrInvalidName = errors.New("invalid blob name")

// LocalStore implements BlobStore using the local file system.
//
// Writes go to a hidden temp file in the same directory, are fsynced and then
// renamed over the target, so a crash never leaves a torn blob behind. A
// writer holds an advisory lock on "<name>.lock" from Create until Close or
// Abort, serializing writers of the same blob across processes.
type LocalStore struct {
	root string
	fs   fs.FileSystem
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem replaces the filesystem (fault injection in tests).
func WithFileSystem(fsys fs.FileSystem) LocalOption {
	return func(s *LocalStore) { s.fs = fsys }
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// The directory is created on first write.
func NewLocalStore(root string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{root: root, fs: fs.Default}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory holding the blobs.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}

// Open opens a blob for reading.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &localBlob{f: f, size: info.Size()}, nil
}

// Create starts an atomic write of name.
func (s *LocalStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return nil, err
	}

	lock, err := fs.AcquireLock(p + lockSuffix)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}

	tmp, err := s.fs.CreateTemp(s.root, "."+name+".*"+tempSuffix)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	return &localWritableBlob{store: s, target: p, tmp: tmp, lock: lock}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// Delete removes a blob.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}

	lock, err := fs.AcquireLock(p + lockSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// List returns blob names with the given prefix, skipping lock and temp files.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, lockSuffix) {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

type localBlob struct {
	f    fs.File
	size int64
}

func (b *localBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.f.ReadAt(p, off)
}

func (b *localBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	off = min(off, b.size)
	length = min(length, b.size-off)
	return io.NopCloser(io.NewSectionReader(b.f, off, length)), nil
}

func (b *localBlob) Close() error { return b.f.Close() }

func (b *localBlob) Size() int64 { return b.size }

type localWritableBlob struct {
	store  *LocalStore
	target string
	tmp    fs.File
	lock   *fs.Lock
	done   bool
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrClosed
	}
	return w.tmp.Write(p)
}

func (w *localWritableBlob) Sync() error {
	if w.done {
		return ErrClosed
	}
	return w.tmp.Sync()
}

// Close publishes the blob: fsync, close, rename, fsync the directory.
// On any failure the temp file is removed and the previous blob (if any)
// stays in place.
func (w *localWritableBlob) Close() error {
	if w.done {
		return ErrClosed
	}
	w.done = true
	defer func() { _ = w.lock.Release() }()

	tmpName := w.tmp.Name()
	if err := w.tmp.Sync(); err != nil {
		_ = w.tmp.Close()
		_ = w.store.fs.Remove(tmpName)
		return err
	}
	if err := w.tmp.Close(); err != nil {
		_ = w.store.fs.Remove(tmpName)
		return err
	}
	if err := w.store.fs.Rename(tmpName, w.target); err != nil {
		_ = w.store.fs.Remove(tmpName)
		return err
	}
	return fs.SyncDir(w.store.fs, w.store.root)
}

func (w *localWritableBlob) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	defer func() { _ = w.lock.Release() }()

	tmpName := w.tmp.Name()
	_ = w.tmp.Close()
	return w.store.fs.Remove(tmpName)
}
