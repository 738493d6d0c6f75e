// Package recordstore keeps the records of one vector store: string ids
// mapped to dense row slots, the vector column and the metadata index.
//
// Rows are assigned in insertion order and never reused, so ascending row
// order is insertion order. Deletes tombstone a row; Compact renumbers the
// surviving rows without changing their relative order.
//
// A Store is not safe for concurrent use. The owner serializes writers and
// may let any number of readers in between.
package recordstore
