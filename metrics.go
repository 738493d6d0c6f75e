package vecstore

import (
	"sync/atomic"
	"time"
)

// Snapshot operation names passed to MetricsCollector.RecordSnapshot.
const (
	SnapshotSave = "save"
	SnapshotLoad = "load"
)

// MetricsCollector receives one call per completed store operation.
// Implementations must be safe for concurrent use. Bridge it to a
// monitoring system such as Prometheus:
//
//	type promCollector struct {
//	    searches *prometheus.HistogramVec
//	}
//
//	func (p *promCollector) RecordSearch(_ int, d time.Duration, err error) {
//	    p.searches.WithLabelValues(outcome(err)).Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordInsert is called after each single insert.
	RecordInsert(duration time.Duration, err error)

	// RecordBatchInsert is called after each batch. count is the number of
	// items submitted, failed the number that were not committed.
	RecordBatchInsert(count, failed int, duration time.Duration)

	// RecordSearch is called after each search with the requested result count.
	RecordSearch(k int, duration time.Duration, err error)

	RecordDelete(duration time.Duration, err error)
	RecordUpdate(duration time.Duration, err error)

	// RecordCompress is called after each compression request.
	RecordCompress(bits int, duration time.Duration, err error)

	// RecordSnapshot is called after each SnapshotSave or SnapshotLoad.
	RecordSnapshot(op string, duration time.Duration, err error)
}

// NoopMetricsCollector discards everything.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)           {}
func (NoopMetricsCollector) RecordBatchInsert(int, int, time.Duration)   {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)           {}
func (NoopMetricsCollector) RecordUpdate(time.Duration, error)           {}
func (NoopMetricsCollector) RecordCompress(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordSnapshot(string, time.Duration, error) {}

// opCounter tracks calls, failures and cumulative latency of one operation.
type opCounter struct {
	count  atomic.Int64
	errors atomic.Int64
	nanos  atomic.Int64
}

func (c *opCounter) observe(d time.Duration, err error) {
	c.count.Add(1)
	c.nanos.Add(int64(d))
	if err != nil {
		c.errors.Add(1)
	}
}

func (c *opCounter) stats() OpStats {
	s := OpStats{Count: c.count.Load(), Errors: c.errors.Load()}
	if s.Count > 0 {
		s.AvgNanos = c.nanos.Load() / s.Count
	}
	return s
}

// BasicMetricsCollector keeps in-memory counters per operation. The zero
// value is ready to use.
type BasicMetricsCollector struct {
	insert   opCounter
	search   opCounter
	delete   opCounter
	update   opCounter
	compress opCounter
	save     opCounter
	load     opCounter

	batches     atomic.Int64
	batchItems  atomic.Int64
	batchFailed atomic.Int64
}

var _ MetricsCollector = (*BasicMetricsCollector)(nil)

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(d time.Duration, err error) { b.insert.observe(d, err) }

// RecordBatchInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchInsert(count, failed int, _ time.Duration) {
	b.batches.Add(1)
	b.batchItems.Add(int64(count))
	b.batchFailed.Add(int64(failed))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, d time.Duration, err error) {
	b.search.observe(d, err)
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(d time.Duration, err error) { b.delete.observe(d, err) }

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(d time.Duration, err error) { b.update.observe(d, err) }

// RecordCompress implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompress(_ int, d time.Duration, err error) {
	b.compress.observe(d, err)
}

// RecordSnapshot implements MetricsCollector. Unknown operations are ignored.
func (b *BasicMetricsCollector) RecordSnapshot(op string, d time.Duration, err error) {
	switch op {
	case SnapshotSave:
		b.save.observe(d, err)
	case SnapshotLoad:
		b.load.observe(d, err)
	}
}

// GetStats returns a point-in-time copy of all counters.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Insert:   b.insert.stats(),
		Search:   b.search.stats(),
		Delete:   b.delete.stats(),
		Update:   b.update.stats(),
		Compress: b.compress.stats(),
		Save:     b.save.stats(),
		Load:     b.load.stats(),
		Batch: BatchStats{
			Count:  b.batches.Load(),
			Items:  b.batchItems.Load(),
			Failed: b.batchFailed.Load(),
		},
	}
}

// OpStats summarizes one operation.
type OpStats struct {
	Count    int64
	Errors   int64
	AvgNanos int64
}

// BatchStats summarizes batch inserts.
type BatchStats struct {
	Count  int64
	Items  int64
	Failed int64
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Insert   OpStats
	Search   OpStats
	Delete   OpStats
	Update   OpStats
	Compress OpStats
	Save     OpStats
	Load     OpStats
	Batch    BatchStats
}
