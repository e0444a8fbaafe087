package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	goGateway "github.com/MrEthical07/goGateway"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goGateway.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goGateway.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goGateway.MetricsSnapshot{
		Counters:   make(map[goGateway.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goGateway.MetricID][]uint64, len(f.snapshot.Histograms)),
		Sums:       make(map[goGateway.MetricID]time.Duration, len(f.snapshot.Sums)),
	}
	for k, v := range f.snapshot.Sums {
		out.Sums[k] = v
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) EventsDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("%s: expected one int64 sum point, got %T", m.Name, m.Data)
	}
	return sum.DataPoints[0].Value
}

func gaugeValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	g, ok := m.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) != 1 {
		t.Fatalf("%s: expected one int64 gauge point, got %T", m.Name, m.Data)
	}
	return g.DataPoints[0].Value
}

func TestExporterCollectsCountersAndBuckets(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goGateway.MetricsSnapshot{
			Counters: map[goGateway.MetricID]uint64{
				goGateway.MetricRequestSuccess: 3,
				goGateway.MetricOfflineQueued:  2,
			},
			Histograms: map[goGateway.MetricID][]uint64{
				goGateway.MetricRequestLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			Sums: map[goGateway.MetricID]time.Duration{
				goGateway.MetricRequestLatency: 250 * time.Millisecond,
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(provider.Meter("gateway-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	if v := sumValue(t, got["gateway_request_success_total"]); v != 3 {
		t.Fatalf("expected request success 3, got %d", v)
	}
	if v := sumValue(t, got["gateway_offline_queued_total"]); v != 2 {
		t.Fatalf("expected offline queued 2, got %d", v)
	}
	if v := sumValue(t, got["gateway_events_dropped_total"]); v != 1 {
		t.Fatalf("expected events dropped 1, got %d", v)
	}
	if v := gaugeValue(t, got["gateway_request_latency_seconds_bucket_le_0_025"]); v != 3 {
		t.Fatalf("expected cumulative bucket 3, got %d", v)
	}
	if v := gaugeValue(t, got["gateway_request_latency_seconds_count"]); v != 8 {
		t.Fatalf("expected count 8, got %d", v)
	}
	latencySum, ok := got["gateway_request_latency_seconds_sum"].Data.(metricdata.Sum[float64])
	if !ok || len(latencySum.DataPoints) != 1 || latencySum.DataPoints[0].Value != 0.25 {
		t.Fatalf("expected latency sum 0.25s, got %+v", got["gateway_request_latency_seconds_sum"].Data)
	}
}

func TestExporterSkipsCountersWhenDisabled(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{snapshot: goGateway.MetricsSnapshot{
		Counters:   map[goGateway.MetricID]uint64{},
		Histograms: map[goGateway.MetricID][]uint64{},
	}}

	exp, err := NewExporterFromSource(provider.Meter("gateway-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	got := collect(t, reader)
	if _, ok := got["gateway_request_success_total"]; ok {
		t.Fatal("expected no request counter for a disabled snapshot")
	}
	if _, ok := got["gateway_events_dropped_total"]; !ok {
		t.Fatal("expected events dropped counter")
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()

	if _, err := NewExporterFromSource(provider.Meter("gateway-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewExporter(provider.Meter("gateway-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil gateway, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goGateway.MetricsSnapshot{
			Counters: map[goGateway.MetricID]uint64{
				goGateway.MetricLoginSuccess: 1,
			},
			Histograms: map[goGateway.MetricID][]uint64{
				goGateway.MetricRequestLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("gateway-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goGateway.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
