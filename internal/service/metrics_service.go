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

// MetricsService encapsulates Prometheus instrumentation for the scheduling core.
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
	slotResolve     prometheus.Histogram
	bookingOutcomes *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	armedTimers     prometheus.Gauge
	liveSessions    prometheus.Gauge
	roomsGauge      prometheus.Gauge
	realtimeDropped prometheus.Counter

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
		Name:    "slot_cache_latency_seconds",
		Help:    "Latency for slot cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slot_cache_write_seconds",
		Help:    "Latency for slot cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slot_cache_hit_ratio",
		Help: "Ratio of slot cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slot_cache_hits_total",
		Help: "Total slot cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slot_cache_misses_total",
		Help: "Total slot cache misses",
	})

	slotResolve := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slot_resolve_duration_seconds",
		Help:    "Time spent computing available slots",
		Buckets: prometheus.DefBuckets,
	})

	bookingOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_reservations_total",
		Help: "Booking reservation attempts by outcome",
	}, []string{"operation", "outcome"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification lifecycle events",
	}, []string{"event"})

	armedTimers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_timers_armed",
		Help: "In-process notification timers currently armed",
	})

	liveSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_sessions_live",
		Help: "Live realtime sessions",
	})

	roomsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_rooms",
		Help: "Rooms with at least one member",
	})

	realtimeDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_slow_consumers_total",
		Help: "Sessions closed because their outbound queue was full",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		slotResolve, bookingOutcomes, notifications, armedTimers, liveSessions, roomsGauge, realtimeDropped, goroutines)

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
		slotResolve:     slotResolve,
		bookingOutcomes: bookingOutcomes,
		notifications:   notifications,
		armedTimers:     armedTimers,
		liveSessions:    liveSessions,
		roomsGauge:      roomsGauge,
		realtimeDropped: realtimeDropped,
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

// Registry exposes the underlying registry for tests.
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

// ObserveSlotResolve records how long a slot computation took.
func (m *MetricsService) ObserveSlotResolve(duration time.Duration) {
	if m == nil {
		return
	}
	m.slotResolve.Observe(duration.Seconds())
}

// RecordBooking counts a reservation attempt. outcome is reserved, conflict or error.
func (m *MetricsService) RecordBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification counts scheduler events such as scheduled, fired, cancelled or failed.
func (m *MetricsService) RecordNotification(event string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event).Inc()
}

// SetArmedTimers reports the timer arena size.
func (m *MetricsService) SetArmedTimers(n int) {
	if m == nil {
		return
	}
	m.armedTimers.Set(float64(n))
}

// SetRealtimeStats reports live session and room counts.
func (m *MetricsService) SetRealtimeStats(sessions, rooms int) {
	if m == nil {
		return
	}
	m.liveSessions.Set(float64(sessions))
	m.roomsGauge.Set(float64(rooms))
}

// RecordSlowConsumer counts a session dropped for a full outbound queue.
func (m *MetricsService) RecordSlowConsumer() {
	if m == nil {
		return
	}
	m.realtimeDropped.Inc()
}
