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

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the board cache,
// the review worker and the janitor.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	reviewOutcomes  *prometheus.CounterVec
	reviewAttempts  *prometheus.CounterVec
	reviewDuration  prometheus.Histogram
	reviewsEnqueued *prometheus.CounterVec
	janitorSwept    *prometheus.CounterVec
	janitorRuns     *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
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

	reviewOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_review_outcomes_total",
		Help: "Completed AI reviews by outcome",
	}, []string{"outcome"})

	reviewAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_review_attempts_total",
		Help: "AI review call attempts by result",
	}, []string{"result"})

	reviewDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ai_review_duration_seconds",
		Help:    "Wall time of a full review job",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	reviewsEnqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_review_enqueued_total",
		Help: "Review jobs offered to the queue by result",
	}, []string{"result"})

	janitorSwept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_rows_total",
		Help: "Rows changed by janitor sweeps",
	}, []string{"sweep"})

	janitorRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_runs_total",
		Help: "Janitor sweep executions by result",
	}, []string{"sweep", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		reviewOutcomes, reviewAttempts, reviewDuration, reviewsEnqueued, janitorSwept, janitorRuns, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		reviewOutcomes:  reviewOutcomes,
		reviewAttempts:  reviewAttempts,
		reviewDuration:  reviewDuration,
		reviewsEnqueued: reviewsEnqueued,
		janitorSwept:    janitorSwept,
		janitorRuns:     janitorRuns,
	}
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordReviewOutcome counts a finished review job and its duration.
func (m *MetricsService) RecordReviewOutcome(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.reviewOutcomes.WithLabelValues(outcome).Inc()
	m.reviewDuration.Observe(duration.Seconds())
}

// RecordReviewAttempt counts one call to the chat endpoint.
func (m *MetricsService) RecordReviewAttempt(result string) {
	if m == nil {
		return
	}
	m.reviewAttempts.WithLabelValues(result).Inc()
}

// RecordEnqueue counts a dispatch to the review queue.
func (m *MetricsService) RecordEnqueue(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.reviewsEnqueued.WithLabelValues(result).Inc()
}

// ObserveQueueDepth exports the number of buffered review jobs reported by depth.
func (m *MetricsService) ObserveQueueDepth(depth func() int) error {
	if m == nil || depth == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ai_review_queue_depth",
		Help: "Review jobs waiting in the queue buffer",
	}, func() float64 {
		return float64(depth())
	})
	if err := m.registry.Register(gauge); err != nil {
		return fmt.Errorf("register queue depth gauge: %w", err)
	}
	return nil
}

// RecordJanitorSweep counts a sweep run and the rows it touched.
func (m *MetricsService) RecordJanitorSweep(sweep string, rows int64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.janitorRuns.WithLabelValues(sweep, result).Inc()
	if rows > 0 {
		m.janitorSwept.WithLabelValues(sweep).Add(float64(rows))
	}
}
