package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordAttempt("CUBO_OS", "ok")
		c.RecordCycle("CUBO_OS", "ok", time.Second)
		c.SetBreakerState("CUBO_OS", 2)
		c.RecordCache("get", "hit")
		c.RecordDropped("bad_date", 3)
	})
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test")
	c.RecordAttempt("CUBO_OS", "http_5xx")
	c.RecordAttempt("CUBO_OS", "http_5xx")
	c.RecordAttempt("CUBO_OS", "ok")
	c.RecordDropped("bad_date", 2)
	c.RecordDropped("bad_amount", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FetchAttempts.WithLabelValues("CUBO_OS", "http_5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FetchAttempts.WithLabelValues("CUBO_OS", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.DroppedRecords.WithLabelValues("bad_date")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.DroppedRecords))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	c := NewCollector("test")
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/items/{id}", "418")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("test")
	c.RecordCache("get", "miss")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_cache_operations_total")
}
