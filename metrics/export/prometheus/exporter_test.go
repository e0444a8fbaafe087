package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goGateway "github.com/MrEthical07/goGateway"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeSource struct {
	snapshot goGateway.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goGateway.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                      { return f.dropped }

func gather(t *testing.T, exp *Exporter) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := exp.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectOnlyDroppedWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goGateway.MetricsSnapshot{
			Counters:   map[goGateway.MetricID]uint64{},
			Histograms: map[goGateway.MetricID][]uint64{},
		},
	})

	families := gather(t, exp)
	if len(families) != 1 {
		t.Fatalf("expected only the dropped counter, got %d families", len(families))
	}
	if _, ok := families["gateway_events_dropped_total"]; !ok {
		t.Fatal("expected gateway_events_dropped_total")
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goGateway.MetricsSnapshot{
			Counters: map[goGateway.MetricID]uint64{
				goGateway.MetricRequestSuccess: 7,
				goGateway.MetricRefreshShared:  3,
			},
			Histograms: map[goGateway.MetricID][]uint64{
				goGateway.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			Sums: map[goGateway.MetricID]time.Duration{
				goGateway.MetricRequestLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	})

	families := gather(t, exp)

	if got := families["gateway_request_success_total"].GetMetric()[0].GetCounter().GetValue(); got != 7 {
		t.Fatalf("expected request success 7, got %v", got)
	}
	if got := families["gateway_refresh_shared_total"].GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected refresh shared 3, got %v", got)
	}
	if got := families["gateway_offline_dropped_total"].GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Fatalf("expected untouched counter at 0, got %v", got)
	}
	if got := families["gateway_events_dropped_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected dropped 2, got %v", got)
	}

	hist := families["gateway_request_latency_seconds"].GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 36 {
		t.Fatalf("expected 36 samples, got %d", hist.GetSampleCount())
	}
	if hist.GetSampleSum() != 1.5 {
		t.Fatalf("expected sample sum 1.5s, got %v", hist.GetSampleSum())
	}
	buckets := hist.GetBucket()
	if len(buckets) != 7 {
		t.Fatalf("expected 7 finite buckets, got %d", len(buckets))
	}
	if buckets[0].GetUpperBound() != 0.005 || buckets[0].GetCumulativeCount() != 1 {
		t.Fatalf("unexpected first bucket: le=%v count=%d", buckets[0].GetUpperBound(), buckets[0].GetCumulativeCount())
	}
	if buckets[6].GetUpperBound() != 0.5 || buckets[6].GetCumulativeCount() != 28 {
		t.Fatalf("unexpected last finite bucket: le=%v count=%d", buckets[6].GetUpperBound(), buckets[6].GetCumulativeCount())
	}
}

func TestCollectReadsFreshSnapshot(t *testing.T) {
	src := &fakeSource{snapshot: goGateway.MetricsSnapshot{
		Counters:   map[goGateway.MetricID]uint64{goGateway.MetricLoginSuccess: 1},
		Histograms: map[goGateway.MetricID][]uint64{},
	}}
	exp := NewExporterFromSource(src)

	_ = gather(t, exp)
	src.snapshot.Counters[goGateway.MetricLoginSuccess] = 5

	families := gather(t, exp)
	if got := families["gateway_login_success_total"].GetMetric()[0].GetCounter().GetValue(); got != 5 {
		t.Fatalf("expected 5 after update, got %v", got)
	}
}

func TestExporterRegistersInCallerRegistry(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: goGateway.MetricsSnapshot{
		Counters: map[goGateway.MetricID]uint64{goGateway.MetricLogout: 4},
	}})

	reg := prometheus.NewRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(exp); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goGateway.MetricsSnapshot{
			Counters:   map[goGateway.MetricID]uint64{goGateway.MetricRateLimited: 9},
			Histograms: map[goGateway.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition content type, got %q", got)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "gateway_rate_limited_total 9") {
		t.Fatalf("expected rate limited counter in output, got:\n%s", body)
	}
}

func BenchmarkCollect(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goGateway.MetricsSnapshot{
			Counters: map[goGateway.MetricID]uint64{
				goGateway.MetricRequestSuccess: 1000,
				goGateway.MetricRequestFailure: 40,
				goGateway.MetricRefreshSuccess: 800,
				goGateway.MetricRefreshFailure: 10,
			},
			Histograms: map[goGateway.MetricID][]uint64{
				goGateway.MetricRequestLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = exp.Registry().Gather()
	}
}
