package rpc

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SlowRequestCallback is called outside the metrics lock when a request
// exceeds the slow threshold.
type SlowRequestCallback func(operation string, latency time.Duration)

// DefaultSlowThreshold is the latency above which a request counts as slow.
const DefaultSlowThreshold = 250 * time.Millisecond

// Metrics holds per-operation request counters for the daemon
type Metrics struct {
	mu sync.RWMutex

	requestCounts  map[string]int64
	requestErrors  map[string]int64
	requestLatency map[string][]time.Duration // bounded to maxSamples
	slowCounts     map[string]int64
	maxSamples     int

	slowThreshold time.Duration
	onSlow        SlowRequestCallback

	totalConns    int64
	rejectedConns int64

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		requestCounts:  make(map[string]int64),
		requestErrors:  make(map[string]int64),
		requestLatency: make(map[string][]time.Duration),
		slowCounts:     make(map[string]int64),
		maxSamples:     1000,
		slowThreshold:  DefaultSlowThreshold,
		startTime:      time.Now(),
	}
}

// SetSlowCallback sets the function invoked for slow requests.
func (m *Metrics) SetSlowCallback(threshold time.Duration, cb SlowRequestCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowThreshold = threshold
	m.onSlow = cb
}

// RecordRequest records a request (successful or failed)
func (m *Metrics) RecordRequest(operation string, latency time.Duration) {
	var callback SlowRequestCallback

	m.mu.Lock()
	m.requestCounts[operation]++
	samples := m.requestLatency[operation]
	if len(samples) >= m.maxSamples {
		samples = samples[1:]
	}
	m.requestLatency[operation] = append(samples, latency)
	if m.slowThreshold > 0 && latency >= m.slowThreshold {
		m.slowCounts[operation]++
		callback = m.onSlow
	}
	m.mu.Unlock()

	if callback != nil {
		callback(operation, latency)
	}
}

// RecordError records a failed request
func (m *Metrics) RecordError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestErrors[operation]++
}

// RecordConnection records a new connection
func (m *Metrics) RecordConnection() {
	atomic.AddInt64(&m.totalConns, 1)
}

// RecordRejectedConnection records a rejected connection (max conns reached)
func (m *Metrics) RecordRejectedConnection() {
	atomic.AddInt64(&m.rejectedConns, 1)
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot(activeConns int) MetricsSnapshot {
	m.mu.RLock()
	operations := make([]OperationMetrics, 0, len(m.requestCounts))
	for op, count := range m.requestCounts {
		errs := m.requestErrors[op]
		om := OperationMetrics{
			Operation:    op,
			TotalCount:   count,
			ErrorCount:   errs,
			SuccessCount: max(count-errs, 0),
			SlowCount:    m.slowCounts[op],
		}
		if samples := m.requestLatency[op]; len(samples) > 0 {
			om.Latency = calculateLatencyStats(append([]time.Duration(nil), samples...))
		}
		operations = append(operations, om)
	}
	m.mu.RUnlock()

	sort.Slice(operations, func(i, j int) bool {
		if operations[i].TotalCount != operations[j].TotalCount {
			return operations[i].TotalCount > operations[j].TotalCount
		}
		return operations[i].Operation < operations[j].Operation
	})

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Round up so a fresh daemon never reports zero uptime
	uptime := math.Max(1, math.Ceil(time.Since(m.startTime).Seconds()))

	return MetricsSnapshot{
		Timestamp:      time.Now(),
		UptimeSeconds:  uptime,
		Operations:     operations,
		TotalConns:     atomic.LoadInt64(&m.totalConns),
		ActiveConns:    activeConns,
		RejectedConns:  atomic.LoadInt64(&m.rejectedConns),
		MemoryAllocMB:  memStats.Alloc / 1024 / 1024,
		GoroutineCount: runtime.NumGoroutine(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics
type MetricsSnapshot struct {
	Timestamp      time.Time          `json:"timestamp"`
	UptimeSeconds  float64            `json:"uptime_seconds"`
	Operations     []OperationMetrics `json:"operations"`
	TotalConns     int64              `json:"total_connections"`
	ActiveConns    int                `json:"active_connections"`
	RejectedConns  int64              `json:"rejected_connections"`
	MemoryAllocMB  uint64             `json:"memory_alloc_mb"`
	GoroutineCount int                `json:"goroutine_count"`
}

// OperationMetrics holds metrics for a single operation type
type OperationMetrics struct {
	Operation    string       `json:"operation"`
	TotalCount   int64        `json:"total_count"`
	SuccessCount int64        `json:"success_count"`
	ErrorCount   int64        `json:"error_count"`
	SlowCount    int64        `json:"slow_count,omitempty"`
	Latency      LatencyStats `json:"latency"`
}

// LatencyStats holds latency percentile data in milliseconds
type LatencyStats struct {
	MinMS float64 `json:"min_ms"`
	P50MS float64 `json:"p50_ms"`
	P95MS float64 `json:"p95_ms"`
	P99MS float64 `json:"p99_ms"`
	MaxMS float64 `json:"max_ms"`
	AvgMS float64 `json:"avg_ms"`
}

// calculateLatencyStats sorts samples in place and computes percentiles.
func calculateLatencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	n := len(samples)
	toMS := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	at := func(p float64) time.Duration {
		idx := int(math.Ceil(float64(n)*p)) - 1
		if idx < 0 {
			idx = 0
		}
		return samples[idx]
	}

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return LatencyStats{
		MinMS: toMS(samples[0]),
		P50MS: toMS(at(0.50)),
		P95MS: toMS(at(0.95)),
		P99MS: toMS(at(0.99)),
		MaxMS: toMS(samples[n-1]),
		AvgMS: toMS(sum / time.Duration(n)),
	}
}
