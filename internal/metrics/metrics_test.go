package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveVendor("list_assistants", 200, time.Second)
	m.ObservePoll("completed", 3)
	m.ReportSubmitted("created")
	m.ObserveHTTP("GET", "/reports", 200, time.Millisecond)
}

func TestRecordsVendorAndReports(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.ObserveVendor("create_thread", 500, 20*time.Millisecond)
	m.ObserveVendor("create_thread", 0, time.Second)
	m.ReportSubmitted("ai_failed")
	m.ReportSubmitted("ai_failed")

	if got := testutil.ToFloat64(m.vendorRequests.WithLabelValues("create_thread", "500")); got != 1 {
		t.Fatalf("expected one 500 call, got %v", got)
	}
	if got := testutil.ToFloat64(m.vendorRequests.WithLabelValues("create_thread", "error")); got != 1 {
		t.Fatalf("expected one transport error, got %v", got)
	}
	c, err := m.ReportCounter("ai_failed")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if got := testutil.ToFloat64(c); got != 2 {
		t.Fatalf("expected 2 failed submissions, got %v", got)
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.ObservePoll("exhausted", 8)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `citypulse_poll_attempts_count{decision="exhausted"} 1`) {
		t.Fatalf("poll histogram missing from output:\n%s", rec.Body.String())
	}
}
