package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

var wantSecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Cache-Control":             "no-store",
}

func TestSecurityHeaders(t *testing.T) {
	cases := []struct {
		name    string
		handler echo.HandlerFunc
		status  int
	}{
		{"success", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, http.StatusOK},
		{"created", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, http.StatusCreated},
		{"handler error", func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "slot taken") }, http.StatusConflict},
		{"plain error", func(c echo.Context) error { return errors.New("boom") }, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			e.Use(SecurityHeaders())
			e.POST("/api/v1/visits", tc.handler)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/visits", nil))

			assert.Equal(t, tc.status, rec.Code)
			for header, want := range wantSecurityHeaders {
				assert.Equal(t, want, rec.Header().Get(header), header)
			}
		})
	}
}

func TestSecurityHeaders_DoesNotSetLegacyHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, rec.Header().Get("X-XSS-Protection"))
	assert.Empty(t, rec.Header().Get("Permissions-Policy"))
}
