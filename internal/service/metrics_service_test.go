package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordBooking("create", "conflict")
	m.RecordBooking("create", "conflict")
	m.RecordNotification("fired")
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingOutcomes.WithLabelValues("create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("fired")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.cacheHitRatio))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "booking_reservations_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordBooking("create", "reserved")
	m.SetArmedTimers(3)
	m.SetRealtimeStats(1, 2)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
