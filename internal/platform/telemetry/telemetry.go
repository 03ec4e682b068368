// Package telemetry wires request tracing and Prometheus metrics into the
// HTTP server and exposes the booking engine's domain counters.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "booking"

// Config holds telemetry settings.
type Config struct {
	ServiceName    string
	MetricsEnabled bool
	TracingEnabled bool
}

// Provider owns the metric registry and the HTTP instrumentation.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry
	tracer   trace.Tracer

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   prometheus.Gauge

	domain *Metrics
}

// NewProvider creates a Provider with its own registry, so tests can build
// several without clashing on the default registerer.
func NewProvider(cfg Config) *Provider {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "booking-server"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tp := &Provider{
		cfg:      cfg,
		registry: reg,
		tracer:   otel.Tracer(cfg.ServiceName + "/http"),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "In-flight HTTP requests",
		}),
	}
	reg.MustRegister(tp.requests, tp.duration, tp.active)
	tp.domain = NewMetrics(reg)
	return tp
}

// Registry returns the registry backing /metrics.
func (tp *Provider) Registry() *prometheus.Registry { return tp.registry }

// Metrics returns the domain counters registered on this provider.
func (tp *Provider) Metrics() *Metrics { return tp.domain }

func routeOf(c echo.Context) string {
	if route := c.Path(); route != "" {
		return route
	}
	return c.Request().URL.Path
}

// TracingMiddleware starts a server span per request, named after the route
// pattern rather than the concrete path.
func (tp *Provider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.TracingEnabled {
				return next(c)
			}
			req := c.Request()
			route := routeOf(c)
			ctx, span := tp.tracer.Start(req.Context(), "HTTP "+req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
				))
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= 500 {
				span.SetStatus(codes.Error, strconv.Itoa(status))
			}
			return nil
		}
	}
}

// MetricsMiddleware records request counts and latency.
func (tp *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.MetricsEnabled {
				return next(c)
			}
			tp.active.Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			tp.active.Dec()
			route := routeOf(c)
			method := c.Request().Method
			tp.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			tp.requests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			return nil
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (tp *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}
