package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/code100x/contestauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot contestauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() contestauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := contestauth.MetricsSnapshot{
		Counters:      make(map[contestauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms:    make(map[contestauth.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: make(map[contestauth.MetricID]time.Duration, len(f.snapshot.HistogramSums)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	for k, v := range f.snapshot.HistogramSums {
		out.HistogramSums[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestExporterCollectsValues(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: contestauth.MetricsSnapshot{
			Counters: map[contestauth.MetricID]uint64{
				contestauth.MetricOTPAttemptsExceeded: 3,
			},
			Histograms: map[contestauth.MetricID][]uint64{
				contestauth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSums: map[contestauth.MetricID]time.Duration{
				contestauth.MetricValidateLatency: 250 * time.Millisecond,
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(provider.Meter("contestauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	m, ok := findMetric(rm, "contestauth_otp_attempts_exceeded_total")
	if !ok {
		t.Fatal("missing attempts exceeded counter")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected counter data: %#v", m.Data)
	}

	m, ok = findMetric(rm, "contestauth_validate_latency_seconds_bucket_le_inf")
	if !ok {
		t.Fatal("missing +Inf bucket gauge")
	}
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 8 {
		t.Fatalf("unexpected bucket data: %#v", m.Data)
	}

	m, ok = findMetric(rm, "contestauth_validate_latency_seconds_sum")
	if !ok {
		t.Fatal("missing sum gauge")
	}
	fgauge, ok := m.Data.(metricdata.Gauge[float64])
	if !ok || len(fgauge.DataPoints) != 1 || fgauge.DataPoints[0].Value != 0.25 {
		t.Fatalf("unexpected sum data: %#v", m.Data)
	}

	if _, ok := findMetric(rm, "contestauth_audit_dropped_total"); !ok {
		t.Fatal("missing audit dropped counter")
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()
	if _, err := NewExporterFromSource(provider.Meter("contestauth-test"), nil); err != ErrNilSource {
		t.Fatalf("nil source err = %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("nil meter err = %v", err)
	}
	if _, err := NewExporter(provider.Meter("contestauth-test"), nil); err != ErrNilSource {
		t.Fatalf("nil engine err = %v", err)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: contestauth.MetricsSnapshot{
			Counters: map[contestauth.MetricID]uint64{contestauth.MetricLoginSuccess: 1},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("contestauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[contestauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
