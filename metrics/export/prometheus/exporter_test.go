package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goDeliver "github.com/MrEthical07/goDeliver"
)

type fakeSource struct {
	snapshot goDeliver.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goDeliver.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goDeliver.MetricsSnapshot{
			Counters:   map[goDeliver.MetricID]uint64{},
			Histograms: map[goDeliver.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goDeliver.MetricsSnapshot{
			Counters: map[goDeliver.MetricID]uint64{
				goDeliver.MetricCheckoutSuccess: 7,
			},
			Histograms: map[goDeliver.MetricID][]uint64{
				goDeliver.MetricCheckoutLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "godeliver_checkout_success_total 7") {
		t.Fatalf("expected checkout_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "godeliver_checkout_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "godeliver_checkout_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "godeliver_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goDeliver.MetricsSnapshot{
			Counters:   map[goDeliver.MetricID]uint64{goDeliver.MetricCheckoutSuccess: 1},
			Histograms: map[goDeliver.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goDeliver.MetricsSnapshot{
			Counters: map[goDeliver.MetricID]uint64{
				goDeliver.MetricCheckoutSuccess: 1000,
				goDeliver.MetricCheckoutFailure: 40,
				goDeliver.MetricOTPIssued:       2400,
				goDeliver.MetricOTPRedeemed:     800,
				goDeliver.MetricTokenConsumed:   790,
				goDeliver.MetricTokenDenied:     20,
				goDeliver.MetricTokenExpired:    3,
			},
			Histograms: map[goDeliver.MetricID][]uint64{
				goDeliver.MetricCheckoutLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
