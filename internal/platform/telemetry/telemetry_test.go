package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestServer(tp *Provider) *echo.Echo {
	e := echo.New()
	e.Use(tp.TracingMiddleware(), tp.MetricsMiddleware())
	e.GET("/slots/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("boom")
	})
	e.GET("/metrics", tp.PrometheusHandler())
	return e
}

func TestMetricsMiddleware_CountsByRoutePattern(t *testing.T) {
	tp := NewProvider(Config{MetricsEnabled: true, TracingEnabled: true})
	e := newTestServer(tp)

	for _, path := range []string{"/slots/a", "/slots/b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	got := testutil.ToFloat64(tp.requests.WithLabelValues(http.MethodGet, "/slots/:id", "200"))
	if got != 2 {
		t.Errorf("expected 2 requests on /slots/:id, got %v", got)
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	tp := NewProvider(Config{MetricsEnabled: true, TracingEnabled: true})
	e := newTestServer(tp)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(tp.requests.WithLabelValues(http.MethodGet, "/boom", "500")); got != 1 {
		t.Errorf("expected one 500 recorded, got %v", got)
	}
}

func TestMetricsMiddleware_Disabled(t *testing.T) {
	tp := NewProvider(Config{})
	e := newTestServer(tp)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots/a", nil))

	if got := testutil.ToFloat64(tp.requests.WithLabelValues(http.MethodGet, "/slots/:id", "200")); got != 0 {
		t.Errorf("expected nothing recorded, got %v", got)
	}
}

func TestPrometheusHandler_ExposesDomainMetrics(t *testing.T) {
	tp := NewProvider(Config{MetricsEnabled: true})
	tp.Metrics().ObserveBooking("booked")
	e := newTestServer(tp)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `booking_scheduling_bookings_total{outcome="booked"} 1`) {
		t.Errorf("bookings counter missing from exposition")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveBooking("booked")
	m.ObserveCancellation("cancelled")
	m.ObserveCompletion("sweep")
	m.ObserveReview("submit", "ok")
	m.ObserveRatingAttempts("practitioner", 2)
	m.ObserveReminder("published")
}

func TestMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveReview("submit", "conflict")
	if got := testutil.ToFloat64(m.reviews.WithLabelValues("submit", "conflict")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}
