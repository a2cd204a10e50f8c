package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every metric the service exports. A nil *Collector is valid
// and records nothing, so components can be built without one in tests.
type Collector struct {
	registry *prometheus.Registry

	FetchAttempts   *prometheus.CounterVec
	FetchCycles     *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	CacheOperations *prometheus.CounterVec
	DroppedRecords  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// NewCollector builds a collector on a private registry.
func NewCollector(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.FetchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cube_fetch_attempts_total",
		Help:      "HTTP attempts against the cube service by outcome",
	}, []string{"cube", "outcome"})

	c.FetchCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cube_fetch_cycles_total",
		Help:      "Completed fetch cycles by final status",
	}, []string{"cube", "status"})

	c.FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cube_fetch_duration_seconds",
		Help:      "Wall time of a fetch cycle including retries",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"cube"})

	c.BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cube_breaker_state",
		Help:      "Circuit breaker state per cube (0 closed, 1 half-open, 2 open)",
	}, []string{"cube"})

	c.CacheOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_operations_total",
		Help:      "Cache store operations by result",
	}, []string{"operation", "result"})

	c.DroppedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "normalizer_dropped_records_total",
		Help:      "Records dropped during normalization by reason",
	}, []string{"reason"})

	c.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served",
	}, []string{"method", "route", "status_code"})

	c.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	c.registry.MustRegister(
		c.FetchAttempts,
		c.FetchCycles,
		c.FetchDuration,
		c.BreakerState,
		c.CacheOperations,
		c.DroppedRecords,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RecordAttempt(cube, outcome string) {
	if c == nil {
		return
	}
	c.FetchAttempts.WithLabelValues(cube, outcome).Inc()
}

func (c *Collector) RecordCycle(cube, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.FetchCycles.WithLabelValues(cube, status).Inc()
	c.FetchDuration.WithLabelValues(cube).Observe(d.Seconds())
}

func (c *Collector) SetBreakerState(cube string, state float64) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(cube).Set(state)
}

func (c *Collector) RecordCache(operation, result string) {
	if c == nil {
		return
	}
	c.CacheOperations.WithLabelValues(operation, result).Inc()
}

func (c *Collector) RecordDropped(reason string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.DroppedRecords.WithLabelValues(reason).Add(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
