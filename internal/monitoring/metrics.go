package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	RequestCount          int64
	ErrorCount            int64
	CacheHits             int64
	CacheMisses           int64
	SimulationsRun        int64
	InteractionsGenerated int64
	RateLimitBlocks       int64
	RateLimitFallbacks    int64
	StartTime             time.Time

	responseTimes      []time.Duration
	responseTimesMutex sync.RWMutex

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		responseTimes:        make([]time.Duration, 0, 1000),
		requestCountByStatus: make(map[int]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments the cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments the cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordSimulation records a completed run and its interaction volume
func (m *Metrics) RecordSimulation(interactions int) {
	atomic.AddInt64(&m.SimulationsRun, 1)
	atomic.AddInt64(&m.InteractionsGenerated, int64(interactions))
}

// IncrementRateLimitBlock counts a request rejected by rate limiting
func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
}

// IncrementRateLimitFallback counts a rate limit check served by the
// in-memory limiter instead of Redis
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbacks, 1)
}

// RecordResponseTime records a response time sample, keeping a bounded window
func (m *Metrics) RecordResponseTime(d time.Duration) {
	m.responseTimesMutex.Lock()
	defer m.responseTimesMutex.Unlock()

	m.responseTimes = append(m.responseTimes, d)
	if len(m.responseTimes) > 1000 {
		m.responseTimes = m.responseTimes[len(m.responseTimes)-1000:]
	}
}

// RecordRequestByStatus tracks response status codes
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[statusCode]++
}

// GetStats returns a snapshot of all metrics
func (m *Metrics) GetStats() map[string]interface{} {
	m.responseTimesMutex.RLock()
	times := append([]time.Duration(nil), m.responseTimes...)
	m.responseTimesMutex.RUnlock()

	m.statusMutex.RLock()
	byStatus := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		byStatus[code] = count
	}
	m.statusMutex.RUnlock()

	stats := map[string]interface{}{
		"request_count":          atomic.LoadInt64(&m.RequestCount),
		"error_count":            atomic.LoadInt64(&m.ErrorCount),
		"cache_hits":             atomic.LoadInt64(&m.CacheHits),
		"cache_misses":           atomic.LoadInt64(&m.CacheMisses),
		"simulations_run":        atomic.LoadInt64(&m.SimulationsRun),
		"interactions_generated": atomic.LoadInt64(&m.InteractionsGenerated),
		"rate_limit_blocks":      atomic.LoadInt64(&m.RateLimitBlocks),
		"rate_limit_fallbacks":   atomic.LoadInt64(&m.RateLimitFallbacks),
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"requests_by_status":     byStatus,
	}

	if len(times) > 0 {
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

		sum := time.Duration(0)
		for _, t := range times {
			sum += t
		}

		stats["response_time_avg_ms"] = float64(sum.Milliseconds()) / float64(len(times))
		stats["response_time_p50_ms"] = times[len(times)*50/100].Milliseconds()
		stats["response_time_p95_ms"] = times[len(times)*95/100].Milliseconds()
		stats["response_time_p99_ms"] = times[len(times)*99/100].Milliseconds()
	}

	return stats
}
