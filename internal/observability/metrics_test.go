package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordAndExpose(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncAggregateConflict("progress.apply_update")
	m.IncAggregateConflict("progress.apply_update")
	m.IncJobEmitted("key_result.calculate_trends", "dropped")
	m.ObserveAPI("GET", "/api/v1/key-results/progress/:id", "200", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.aggregateConflicts.WithLabelValues("progress.apply_update")); got != 2 {
		t.Fatalf("conflicts: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.jobsEmitted.WithLabelValues("key_result.calculate_trends", "dropped")); got != 1 {
		t.Fatalf("dropped: want=1 got=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "krt_api_requests_total") {
		t.Fatalf("exposition missing api counter")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncAggregateRetry("x")
	m.ObserveJobRun("x", "ok", time.Second)
	m.APIInflightInc()
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have nil registry")
	}
}

func TestParseHeaders(t *testing.T) {
	h := ParseHeaders("api-key=abc, bad, x=")
	if len(h) != 1 || h["api-key"] != "abc" {
		t.Fatalf("unexpected headers: %v", h)
	}
	if ParseHeaders("") != nil {
		t.Fatalf("empty should be nil")
	}
}
