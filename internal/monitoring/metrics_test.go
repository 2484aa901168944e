package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncrementRequest()
	m.IncrementRequest()
	m.IncrementError()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.RecordSimulation(140)
	m.RecordSimulation(60)

	stats := m.GetStats()

	assert.Equal(t, int64(2), stats["request_count"])
	assert.Equal(t, int64(1), stats["error_count"])
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(1), stats["cache_misses"])
	assert.Equal(t, int64(2), stats["simulations_run"])
	assert.Equal(t, int64(200), stats["interactions_generated"])
}

func TestMetricsResponseTimes(t *testing.T) {
	m := NewMetrics()

	for i := 1; i <= 10; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	stats := m.GetStats()
	assert.Contains(t, stats, "response_time_avg_ms")
	assert.Contains(t, stats, "response_time_p95_ms")
}

func TestMetricsStatusTracking(t *testing.T) {
	m := NewMetrics()

	m.RecordRequestByStatus(200)
	m.RecordRequestByStatus(200)
	m.RecordRequestByStatus(404)

	stats := m.GetStats()
	byStatus := stats["requests_by_status"].(map[int]int64)
	assert.Equal(t, int64(2), byStatus[200])
	assert.Equal(t, int64(1), byStatus[404])
}

func TestMetricsConcurrentAccess(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementRequest()
			m.RecordResponseTime(time.Millisecond)
			m.RecordRequestByStatus(200)
		}()
	}
	wg.Wait()

	stats := m.GetStats()
	assert.Equal(t, int64(50), stats["request_count"])
}
