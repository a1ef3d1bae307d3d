package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordAndServe(t *testing.T) {
	m := NewMetrics("rolechat_test")
	m.ObserveTurn("gemini", "ok", 1200*time.Millisecond)
	m.ObserveTurn("gemini", "ok", 300*time.Millisecond)
	m.ObserveProviderError("openai", "upstream_status")
	m.ObserveEvaluatorFailure("parse")
	m.ObservePersistFailure("insert")
	m.ObserveMemoryTask("dropped")

	if got := testutil.ToFloat64(m.Turns.WithLabelValues("gemini", "ok")); got != 2 {
		t.Fatalf("turns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues("openai", "upstream_status")); got != 1 {
		t.Fatalf("provider errors = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"rolechat_test_turns_total",
		"rolechat_test_affinity_evaluator_failures_total",
		"rolechat_test_memory_persist_failures_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("gemini", "ok", time.Second)
	m.ObserveEvaluatorFailure("call")
	m.ObserveAffinityDelta(3)
	if m.Handler() == nil {
		t.Fatalf("expected a handler")
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances with the same namespace must not collide.
	_ = NewMetrics("rolechat_dup")
	_ = NewMetrics("rolechat_dup")
}
