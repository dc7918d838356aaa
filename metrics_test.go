package goVerify

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricVerifySuccess)

	if got := m.Value(MetricVerifySuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricIssueSuccess)
	m.Inc(MetricIssueSuccess)
	m.Inc(MetricIssueSuccess)

	if got := m.Value(MetricIssueSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricVerifyInvalidCode)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricVerifyInvalidCode); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounterIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Observe(MetricIssueSuccess, time.Millisecond)

	if _, ok := m.Snapshot().Histograms[MetricIssueSuccess]; ok {
		t.Fatal("only the verify latency carries a histogram")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricResendSuccess)
	m.Inc(MetricResendCooldown)
	m.Inc(MetricResendCooldown)
	m.Observe(MetricVerifyLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricResendSuccess] != 1 {
		t.Fatalf("expected MetricResendSuccess=1 got %d", snap.Counters[MetricResendSuccess])
	}
	if snap.Counters[MetricResendCooldown] != 2 {
		t.Fatalf("expected MetricResendCooldown=2 got %d", snap.Counters[MetricResendCooldown])
	}
	if len(snap.Histograms[MetricVerifyLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricVerifyLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricVerifyLatency][0])
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricIssueSuccess)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if m.Enabled() || m.Value(MetricIssueSuccess) != 0 {
		t.Fatal("nil metrics must be inert")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatal("nil metrics snapshot must be empty")
	}
}
