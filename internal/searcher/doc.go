// Package searcher ranks rows of a vector column by cosine similarity.
//
// Search is exact: every candidate row is scored. Candidates are split into
// contiguous partitions scored concurrently; each partition keeps a bounded
// heap of its best k rows and the partial results are merged by score
// (descending) and row (ascending). Since rows are assigned in insertion
// order, equal scores rank by insertion order whatever the partitioning.
package searcher
