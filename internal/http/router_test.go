package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citypulse/backend/internal/ai"
	"github.com/citypulse/backend/internal/config"
	"github.com/citypulse/backend/internal/db"
	"github.com/citypulse/backend/internal/metrics"
	"github.com/citypulse/backend/internal/service"
)

func testRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.NewGorm(":memory:", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(store.Close)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	reports := &service.ReportService{Store: store, AI: ai.MockAnalyzer{}, Metrics: m, Logger: zerolog.Nop()}
	return Router(cfg, store, reports, m, zerolog.Nop())
}

func TestRouterHealthAliasesAndRequestID(t *testing.T) {
	r := testRouter(t, config.Config{CORSAllowed: "*", MaxUploadMB: 8})
	for _, path := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req_fixed")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req_fixed", w.Header().Get("X-Request-Id"))
}

func TestRouterAdminKeyGuardsMutations(t *testing.T) {
	r := testRouter(t, config.Config{CORSAllowed: "*", AdminKey: "letmein"})
	path := "/reports/3f1b3c8e-9d7a-4a57-9a38-6f4b2a1c9e10"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("X-Admin-Key", "letmein")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterExposesMetrics(t *testing.T) {
	r := testRouter(t, config.Config{CORSAllowed: "*"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `citypulse_http_requests_total{method="GET",path="/reports",status="200"} 1`)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitOrigins(" https://a.example, ,https://b.example "))
	assert.Empty(t, splitOrigins(""))
}
