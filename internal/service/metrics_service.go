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

// MetricsService owns the Prometheus registry for HTTP traffic, imports, redemptions and caching.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	importTotal     *prometheus.CounterVec
	importDuration  prometheus.Observer
	importItems     *prometheus.CounterVec
	redemptionTotal *prometheus.CounterVec
	redeemedPoints  prometheus.Counter
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
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

	importTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imports_total",
		Help: "Import runs by outcome",
	}, []string{"outcome"})

	importDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "import_duration_seconds",
		Help:    "Duration of import runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	importItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_report_items_total",
		Help: "Report entries produced by successful imports",
	}, []string{"section"})

	redemptionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reward_redemptions_total",
		Help: "Redemption batches by outcome",
	}, []string{"outcome"})

	redeemedPoints := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reward_points_redeemed_total",
		Help: "Reward points redeemed",
	})

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

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, importTotal, importDuration, importItems, redemptionTotal, redeemedPoints,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		importTotal:     importTotal,
		importDuration:  importDuration,
		importItems:     importItems,
		redemptionTotal: redemptionTotal,
		redeemedPoints:  redeemedPoints,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Registry exposes the underlying registry for tests and additional collectors.
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveImport counts an import run and its duration.
func (m *MetricsService) ObserveImport(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.importTotal.WithLabelValues(outcome).Inc()
	m.importDuration.Observe(duration.Seconds())
}

// RecordImportReport adds the section sizes of a successful import.
func (m *MetricsService) RecordImportReport(report *ImportReport) {
	if m == nil || report == nil {
		return
	}
	for _, section := range report.sections() {
		m.importItems.WithLabelValues(section.heading).Add(float64(len(section.items)))
	}
}

// ObserveRedemption counts a redemption batch and, on success, the points it spent.
func (m *MetricsService) ObserveRedemption(outcome string, points int) {
	if m == nil {
		return
	}
	m.redemptionTotal.WithLabelValues(outcome).Inc()
	if points > 0 {
		m.redeemedPoints.Add(float64(points))
	}
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
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
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
