// Package persistence writes and reads collection snapshots.
//
// A snapshot is one blob, "<collection>.vstore", in a blobstore.BlobStore:
//
//	+----------------------+  fixed 48-byte little-endian header
//	| magic "VST1"         |
//	| version, flags       |
//	| body compression     |  none | lz4 | zstd
//	| codec name           |  metadata encoding ("go-json", "json")
//	| stored/raw body size |
//	| CRC32C(stored body)  |
//	+----------------------+
//	| body                 |  dimension, compression state, then records
//	+----------------------+  in insertion order: id, metadata, raw row
//
// Vectors are stored in their active representation (float32, binary16 or
// 8-bit codes), so a compressed store reloads compressed.
package persistence
