package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

// latencyBuckets span 5ms to roughly 10s.
var latencyBuckets = prometheus.ExponentialBuckets(0.005, 2, 12)

// HTTPMetricsOptions configures the HTTP metrics middleware.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	// Namespace prefixes every metric name, "auth" when empty.
	Namespace string
	Buckets   []float64
}

// HTTPMetrics holds the request collectors. They are labelled by route template rather
// than raw path.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the collectors on opts.Registerer, or the default registerer.
// Building it twice against the same registerer returns the collectors registered first.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "auth"
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = latencyBuckets
	}
	labels := []string{"method", "route", "status"}

	var (
		m   HTTPMetrics
		err error
	)
	if m.Requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, labels)); err != nil {
		return nil, err
	}
	if m.Duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route template and status code.",
		Buckets:   buckets,
	}, labels)); err != nil {
		return nil, err
	}
	if m.InFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served.",
	})); err != nil {
		return nil, err
	}

	return &m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)

	var dup prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		return c, nil
	case !errors.As(err, &dup):
		return c, fmt.Errorf("register http collector: %w", err)
	}

	existing, ok := dup.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("register http collector: existing collector is %T", dup.ExistingCollector)
	}
	return existing, nil
}

// Handler records every request. Paths that match no route share the "unmatched" label.
// A nil receiver yields a pass-through handler.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		m.InFlight.Inc()
		defer m.InFlight.Dec()
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := strconv.Itoa(c.Writer.Status())

		m.Requests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.Duration.WithLabelValues(c.Request.Method, route, status).Observe(elapsed.Seconds())
	}
}
