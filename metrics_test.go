package vecstore

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	var m BasicMetricsCollector
	boom := errors.New("boom")

	m.RecordInsert(10*time.Nanosecond, nil)
	m.RecordInsert(30*time.Nanosecond, boom)
	m.RecordSearch(5, 8*time.Nanosecond, nil)
	m.RecordBatchInsert(4, 1, time.Millisecond)
	m.RecordSnapshot(SnapshotLoad, time.Millisecond, boom)
	m.RecordSnapshot("other", time.Millisecond, nil)

	stats := m.GetStats()
	assert.Equal(t, OpStats{Count: 2, Errors: 1, AvgNanos: 20}, stats.Insert)
	assert.Equal(t, OpStats{Count: 1, AvgNanos: 8}, stats.Search)
	assert.Equal(t, BatchStats{Count: 1, Items: 4, Failed: 1}, stats.Batch)
	assert.Equal(t, int64(1), stats.Load.Errors)
	assert.Zero(t, stats.Save.Count)
	assert.Zero(t, stats.Delete)
}

func TestBasicMetricsCollectorConcurrent(t *testing.T) {
	var m BasicMetricsCollector
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.RecordDelete(time.Nanosecond, nil)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), m.GetStats().Delete.Count)
}
