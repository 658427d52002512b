package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(reg *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRequestLogger(logging.NewNopLogger()).Handler())
	pm := NewPrometheusMiddleware("test", reg)
	r.Use(pm.Handler())
	pm.RegisterMetricsEndpoint(r, reg)

	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func TestRequestLogger_SetsTraceID(t *testing.T) {
	r := newTestRouter(prometheus.NewRegistry())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-Id"), "Каждый ответ несет trace-ID")
}

func TestPrometheusMiddleware_CountsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRouter(reg)

	for _, path := range []string{"/ok", "/fail", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, `test_http_request_errors_total{method="GET",path="/fail",status="500"} 2`), "Ошибки посчитаны по пути")
	assert.Contains(t, body, "test_http_request_duration_seconds_bucket")
}
