package contestauth

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("disabled snapshot should be empty: %v", snap.Counters)
	}
}

func TestMetricsNilIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(MetricOTPIssued)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Value(MetricOTPIssued) != 0 || m.Enabled() {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 16
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricOTPVerifyMismatch)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricOTPVerifyMismatch); got != goroutines*perG {
		t.Fatalf("expected %d, got %d", goroutines*perG, got)
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		time.Millisecond, 7 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond,
		80 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, time.Second,
	} {
		m.Observe(MetricValidateLatency, d)
	}
	m.Observe(MetricOTPIssued, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count = %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d = %d, want 1", i, v)
		}
	}
	want := time.Millisecond + 7*time.Millisecond + 20*time.Millisecond + 40*time.Millisecond +
		80*time.Millisecond + 200*time.Millisecond + 400*time.Millisecond + time.Second
	if got := snap.HistogramSums[MetricValidateLatency]; got != want {
		t.Fatalf("histogram sum = %v, want %v", got, want)
	}
	if _, ok := snap.Histograms[MetricOTPIssued]; ok {
		t.Fatal("only validate latency has a histogram")
	}
}

func TestEngineCountsOTPOutcomes(t *testing.T) {
	env := newTestEnv(t, nil)
	signupUser(t, env, "a@x.com", "secret1")

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricOTPIssued] != 1 || snap.Counters[MetricOTPVerifySuccess] != 1 || snap.Counters[MetricSignupSuccess] != 1 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}
}
