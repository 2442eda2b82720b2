package service

import (
	"strings"
	"testing"
	"time"
)

func newTestMetrics() (*MetricsRegistry, *testClock) {
	clock := newTestClock()
	m := NewMetricsRegistry("UTC")
	m.now = clock.now
	m.daily.Date = clock.now().Format("2006-01-02")
	return m, clock
}

func TestMetricsConcurrencyTracking(t *testing.T) {
	m, _ := newTestMetrics()

	end1 := m.BeginScan()
	end2 := m.BeginScan()
	end3 := m.BeginScan()

	report := m.Snapshot()
	if report.ConcurrentScans != 3 {
		t.Errorf("concurrent = %d, want 3", report.ConcurrentScans)
	}

	end1()
	end2()
	report = m.Snapshot()
	if report.ConcurrentScans != 1 {
		t.Errorf("concurrent = %d, want 1", report.ConcurrentScans)
	}
	// Peak survives the scans finishing.
	if report.PeakConcurrentScans != 3 {
		t.Errorf("peak = %d, want 3", report.PeakConcurrentScans)
	}

	end3()
	if report := m.Snapshot(); report.ConcurrentScans != 0 {
		t.Errorf("concurrent = %d, want 0", report.ConcurrentScans)
	}
}

func TestMetricsErrorStreak(t *testing.T) {
	m, _ := newTestMetrics()

	m.RecordError("timeout 1")
	m.RecordError("timeout 2")
	if got := m.Snapshot().ConsecutiveErrors; got != 2 {
		t.Fatalf("streak = %d, want 2", got)
	}

	// Any success resets the streak; the window error count does not reset.
	m.RecordProviderCall()
	report := m.Snapshot()
	if report.ConsecutiveErrors != 0 {
		t.Errorf("streak after success = %d, want 0", report.ConsecutiveErrors)
	}
	if report.ErrorsInWindow != 2 {
		t.Errorf("window errors = %d, want 2", report.ErrorsInWindow)
	}
	if report.LastError != "timeout 2" {
		t.Errorf("last error = %q, want %q", report.LastError, "timeout 2")
	}

	m.RecordError("timeout 3")
	m.RecordCacheHit()
	if got := m.Snapshot().ConsecutiveErrors; got != 0 {
		t.Errorf("streak after cache hit = %d, want 0", got)
	}
}

func TestMetricsRollingWindowPrunes(t *testing.T) {
	m, clock := newTestMetrics()

	m.RecordError("old")
	clock.advance(rollingWindow + time.Second)
	m.RecordError("recent")

	report := m.Snapshot()
	if report.ErrorsInWindow != 1 {
		t.Errorf("window errors = %d, want 1 after pruning", report.ErrorsInWindow)
	}
}

func TestMetricsHealthClassification(t *testing.T) {
	t.Run("healthy by default", func(t *testing.T) {
		m, _ := newTestMetrics()
		report := m.Snapshot()
		if report.Status != HealthHealthy {
			t.Errorf("status = %q, want healthy", report.Status)
		}
		if len(report.Alerts) != 0 {
			t.Errorf("unexpected alerts: %v", report.Alerts)
		}
	})

	t.Run("error streak escalates to warning then critical", func(t *testing.T) {
		m, _ := newTestMetrics()
		for i := 0; i < warnErrorStreak; i++ {
			m.RecordError("provider down")
		}
		report := m.Snapshot()
		if report.Status != HealthWarning {
			t.Errorf("status = %q, want warning", report.Status)
		}

		for i := warnErrorStreak; i < critErrorStreak; i++ {
			m.RecordError("provider down")
		}
		report = m.Snapshot()
		if report.Status != HealthCritical {
			t.Errorf("status = %q, want critical", report.Status)
		}
		found := false
		for _, alert := range report.Alerts {
			if strings.HasPrefix(alert, "CRITICAL:") && strings.Contains(alert, "consecutive errors") {
				found = true
			}
		}
		if !found {
			t.Errorf("missing critical streak alert in %v", report.Alerts)
		}
	})

	t.Run("critical outranks later warnings", func(t *testing.T) {
		m, _ := newTestMetrics()
		for i := 0; i < critErrorStreak; i++ {
			m.RecordError("x")
		}
		// The window error count is also past its warning threshold now; the
		// overall status must stay critical.
		report := m.Snapshot()
		if report.Status != HealthCritical {
			t.Errorf("status = %q, want critical", report.Status)
		}
	})
}

func TestMetricsDailyRollover(t *testing.T) {
	m, clock := newTestMetrics()

	end := m.BeginScan()
	end()
	m.RecordCacheHit()
	m.RecordProviderCall()

	report := m.Snapshot()
	if report.Daily.Scans != 1 || report.Daily.CacheHits != 1 || report.Daily.ProviderCalls != 1 {
		t.Fatalf("daily counters = %+v", report.Daily)
	}

	// Cross local midnight: counters reset, date advances.
	clock.advance(24 * time.Hour)
	report = m.Snapshot()
	if report.Daily.Scans != 0 {
		t.Errorf("daily scans after rollover = %d, want 0", report.Daily.Scans)
	}
	if report.Daily.Date != clock.now().Format("2006-01-02") {
		t.Errorf("daily date = %q, want %q", report.Daily.Date, clock.now().Format("2006-01-02"))
	}
}

func TestMetricsCacheHitRate(t *testing.T) {
	m, _ := newTestMetrics()

	for i := 0; i < 4; i++ {
		end := m.BeginScan()
		end()
	}
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()

	report := m.Snapshot()
	if report.CacheHitRate != 0.75 {
		t.Errorf("cache hit rate = %v, want 0.75", report.CacheHitRate)
	}
}

func TestMetricsAvgResponse(t *testing.T) {
	m, clock := newTestMetrics()

	end := m.BeginScan()
	clock.advance(2 * time.Second)
	end()

	end = m.BeginScan()
	clock.advance(4 * time.Second)
	end()

	report := m.Snapshot()
	if report.AvgResponseMs != 3000 {
		t.Errorf("avg response = %dms, want 3000ms", report.AvgResponseMs)
	}
}
