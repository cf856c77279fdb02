package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for allocation operations.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// SystemMetrics is a lightweight JSON view of the collected metrics.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	AllocationOperations     uint64    `json:"allocation_operations"`
	AllocationRejections     uint64    `json:"allocation_rejections"`
	DispatchFailures         uint64    `json:"dispatch_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	allocationOps      *prometheus.CounterVec
	allocationProgress *prometheus.GaugeVec
	activeConflicts    prometheus.Gauge
	dispatchJobs       *prometheus.CounterVec
	exportDuration     *prometheus.HistogramVec
	allocationRequests *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	allocationOpCount    uint64
	allocationRejectCnt  uint64
	dispatchFailureCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	allocationOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_operations_total",
		Help: "Allocation operations by allocator, operation and outcome",
	}, []string{"allocator", "operation", "outcome"})

	allocationProgress := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "allocation_progress_percent",
		Help: "Completion percentage of the active allocation session",
	}, []string{"allocator"})

	activeConflicts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_active_conflicts",
		Help: "Room type conflicts currently recorded",
	})

	dispatchJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_jobs_total",
		Help: "Timetable generator dispatch attempts by outcome",
	}, []string{"transport", "outcome"})

	exportDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "export_render_seconds",
		Help:    "Time spent rendering allocation exports",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})

	allocationRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_api_requests_total",
		Help: "Allocation API requests by route group and outcome",
	}, []string{"group", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		allocationOps, allocationProgress, activeConflicts, dispatchJobs, exportDuration, allocationRequests, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		allocationOps:      allocationOps,
		allocationProgress: allocationProgress,
		activeConflicts:    activeConflicts,
		dispatchJobs:       dispatchJobs,
		exportDuration:     exportDuration,
		allocationRequests: allocationRequests,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAllocation counts one allocator operation.
func (m *MetricsService) RecordAllocation(allocatorName, operation, outcome string) {
	if m == nil {
		return
	}
	m.allocationOps.WithLabelValues(allocatorName, operation, outcome).Inc()
	atomic.AddUint64(&m.allocationOpCount, 1)
	if outcome == OutcomeRejected {
		atomic.AddUint64(&m.allocationRejectCnt, 1)
	}
}

// SetProgress publishes the completion percentage for an allocator.
func (m *MetricsService) SetProgress(allocatorName string, percentage int) {
	if m == nil {
		return
	}
	m.allocationProgress.WithLabelValues(allocatorName).Set(float64(percentage))
}

// SetActiveConflicts publishes the number of recorded room conflicts.
func (m *MetricsService) SetActiveConflicts(n int) {
	if m == nil {
		return
	}
	m.activeConflicts.Set(float64(n))
}

// RecordDispatch counts a dispatch attempt.
func (m *MetricsService) RecordDispatch(transport string, success bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !success {
		outcome = OutcomeError
		atomic.AddUint64(&m.dispatchFailureCount, 1)
	}
	m.dispatchJobs.WithLabelValues(transport, outcome).Inc()
}

// ObserveExport records rendering time for an export format.
func (m *MetricsService) ObserveExport(format string, duration time.Duration) {
	if m == nil {
		return
	}
	m.exportDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// Snapshot returns aggregated metrics suitable for the metrics JSON endpoint.
func (m *MetricsService) Snapshot() SystemMetrics {
	if m == nil {
		return SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		AllocationOperations:     atomic.LoadUint64(&m.allocationOpCount),
		AllocationRejections:     atomic.LoadUint64(&m.allocationRejectCnt),
		DispatchFailures:         atomic.LoadUint64(&m.dispatchFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

// ObserveAllocationRequest counts an allocation API call by route group (teachers, rooms, finalize, roster).
func (m *MetricsService) ObserveAllocationRequest(group string, status int) {
	if m == nil || group == "" {
		return
	}
	outcome := OutcomeOK
	switch {
	case status >= http.StatusInternalServerError:
		outcome = OutcomeError
	case status == http.StatusConflict:
		outcome = OutcomeConflict
	case status >= http.StatusBadRequest:
		outcome = OutcomeRejected
	}
	m.allocationRequests.WithLabelValues(group, outcome).Inc()
}
