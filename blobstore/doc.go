// Package blobstore abstracts where collection snapshots live.
//
// A BlobStore holds named, immutable blobs. Writes go through a WritableBlob
// that becomes visible only on a successful Close, so readers never observe a
// partially written blob:
//
//   - LocalStore: files under a directory (temp file, fsync, rename)
//   - MemoryStore: in-process map, for tests and ephemeral stores
//   - s3.Store, minio.Store: object storage (uploads are atomic per object)
//
// All operations accept a context; local operations only check it up front.
package blobstore
