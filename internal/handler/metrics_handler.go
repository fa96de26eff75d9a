package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/service"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type realtimeStats interface {
	Stats() (sessions, rooms int)
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics  *service.MetricsService
	db       pinger
	cache    pinger
	realtime realtimeStats
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, db pinger, realtime realtimeStats) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, realtime: realtime}
}

// WithCache adds the slot cache to the readiness report.
func (h *MetricsHandler) WithCache(cache pinger) *MetricsHandler {
	h.cache = cache
	return h
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database answers and how many realtime sessions are live.
// An unreachable slot cache only degrades the report since lookups fall back to the database.
func (h *MetricsHandler) Ready(c *gin.Context) {
	body := gin.H{"status": "ready"}
	if h.realtime != nil {
		sessions, rooms := h.realtime.Stats()
		body["realtime"] = gin.H{"sessions": sessions, "rooms": rooms}
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.cache != nil {
		if err := h.cache.PingContext(ctx); err != nil {
			body["status"] = "degraded"
			body["cache"] = err.Error()
		}
	}
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			body["status"] = "unavailable"
			body["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}
