package service

import (
	"fmt"
	"sync"
	"time"
)

// rollingWindow is the lookback for per-minute rate derivation.
const rollingWindow = 5 * time.Minute

// responseSamples is how many recent response times feed the moving average.
const responseSamples = 10

// Health classification thresholds. Advisory only: the registry never blocks
// a request, it feeds the health endpoint and alerting.
const (
	warnConcurrentScans = 20
	critConcurrentScans = 50
	warnErrorStreak     = 3
	critErrorStreak     = 10
	warnProviderPerMin  = 40
	critProviderPerMin  = 55
	warnWindowErrors    = 10
	critWindowErrors    = 30
	warnAvgResponse     = 10 * time.Second
	critAvgResponse     = 25 * time.Second
)

// HealthStatus is the tri-state health classification.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// DailyCounters are reset at local midnight of the reference timezone.
type DailyCounters struct {
	Date          string `json:"date"`
	Scans         int64  `json:"scans"`
	ProviderCalls int64  `json:"provider_calls"`
	CacheHits     int64  `json:"cache_hits"`
	Errors        int64  `json:"errors"`
}

// HealthReport is a point-in-time snapshot of service health.
type HealthReport struct {
	Status                 HealthStatus  `json:"status"`
	Alerts                 []string      `json:"alerts,omitempty"`
	ConcurrentScans        int           `json:"concurrent_scans"`
	PeakConcurrentScans    int           `json:"peak_concurrent_scans"`
	ScansPerMinute         float64       `json:"scans_per_minute"`
	ProviderCallsPerMinute float64       `json:"provider_calls_per_minute"`
	ErrorsInWindow         int           `json:"errors_in_window"`
	ConsecutiveErrors      int           `json:"consecutive_errors"`
	AvgResponseMs          int64         `json:"avg_response_ms"`
	CacheHitRate           float64       `json:"cache_hit_rate"`
	Daily                  DailyCounters `json:"daily"`
	LastError              string        `json:"last_error,omitempty"`
}

// MetricsRegistry tracks in-process counters for concurrency, throughput,
// error streaks and cache efficiency. It is an explicit injectable service,
// constructed once per process; tests inject a fresh instance.
type MetricsRegistry struct {
	mu  sync.Mutex
	loc *time.Location

	inFlight     int
	peakInFlight int

	scanTimes     []time.Time
	providerTimes []time.Time
	errorTimes    []time.Time

	// consecutiveErrors is the soft circuit-breaker signal: reset to zero by
	// any successful provider call or cache hit.
	consecutiveErrors int
	lastError         string

	respTimes []time.Duration

	daily DailyCounters

	// now is injectable for tests.
	now func() time.Time
}

// NewMetricsRegistry creates a MetricsRegistry whose daily counters reset at
// local midnight of the given timezone. An unknown timezone falls back to
// UTC.
func NewMetricsRegistry(timezone string) *MetricsRegistry {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	m := &MetricsRegistry{
		loc: loc,
		now: time.Now,
	}
	m.daily.Date = m.now().In(loc).Format("2006-01-02")
	return m
}

// BeginScan registers a scan starting and returns the function to call when
// it finishes. The end function records the response-time sample and
// decrements the in-flight count.
func (m *MetricsRegistry) BeginScan() func() {
	m.mu.Lock()
	now := m.now()
	m.rollDay(now)
	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}
	m.daily.Scans++
	m.scanTimes = pruneAndAppend(m.scanTimes, now)
	m.mu.Unlock()

	start := now
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.inFlight--
		m.respTimes = append(m.respTimes, m.now().Sub(start))
		if len(m.respTimes) > responseSamples {
			m.respTimes = m.respTimes[len(m.respTimes)-responseSamples:]
		}
	}
}

// RecordProviderCall counts a successful external classifier call and resets
// the error streak.
func (m *MetricsRegistry) RecordProviderCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.rollDay(now)
	m.daily.ProviderCalls++
	m.providerTimes = pruneAndAppend(m.providerTimes, now)
	m.consecutiveErrors = 0
}

// RecordCacheHit counts a cache-served scan and resets the error streak.
func (m *MetricsRegistry) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay(m.now())
	m.daily.CacheHits++
	m.consecutiveErrors = 0
}

// RecordError counts a pipeline error and advances the error streak.
func (m *MetricsRegistry) RecordError(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.rollDay(now)
	m.daily.Errors++
	m.errorTimes = pruneAndAppend(m.errorTimes, now)
	m.consecutiveErrors++
	m.lastError = message
}

// Snapshot derives the health classification from threshold rules over the
// current counters. Each breached threshold appends a human-readable alert.
func (m *MetricsRegistry) Snapshot() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollDay(now)
	m.scanTimes = prune(m.scanTimes, now)
	m.providerTimes = prune(m.providerTimes, now)
	m.errorTimes = prune(m.errorTimes, now)

	minutes := rollingWindow.Minutes()
	report := HealthReport{
		Status:                 HealthHealthy,
		ConcurrentScans:        m.inFlight,
		PeakConcurrentScans:    m.peakInFlight,
		ScansPerMinute:         float64(len(m.scanTimes)) / minutes,
		ProviderCallsPerMinute: float64(len(m.providerTimes)) / minutes,
		ErrorsInWindow:         len(m.errorTimes),
		ConsecutiveErrors:      m.consecutiveErrors,
		AvgResponseMs:          m.avgResponse().Milliseconds(),
		Daily:                  m.daily,
		LastError:              m.lastError,
	}
	if m.daily.Scans > 0 {
		report.CacheHitRate = float64(m.daily.CacheHits) / float64(m.daily.Scans)
	}

	check := func(val, warn, crit float64, format string) {
		switch {
		case val >= crit:
			report.Status = HealthCritical
			report.Alerts = append(report.Alerts, fmt.Sprintf("CRITICAL: "+format, val))
		case val >= warn:
			if report.Status == HealthHealthy {
				report.Status = HealthWarning
			}
			report.Alerts = append(report.Alerts, fmt.Sprintf("WARNING: "+format, val))
		}
	}

	check(float64(report.ConcurrentScans), warnConcurrentScans, critConcurrentScans,
		"%.0f scans in flight")
	check(float64(report.ConsecutiveErrors), warnErrorStreak, critErrorStreak,
		"%.0f consecutive errors without a success")
	check(report.ProviderCallsPerMinute, warnProviderPerMin, critProviderPerMin,
		"%.1f provider calls per minute, approaching external rate limit")
	check(float64(report.ErrorsInWindow), warnWindowErrors, critWindowErrors,
		"%.0f errors in the last 5 minutes")
	check(float64(report.AvgResponseMs), float64(warnAvgResponse.Milliseconds()),
		float64(critAvgResponse.Milliseconds()), "average response time %.0fms")

	return report
}

// rollDay resets the daily counters when the local date in the reference
// timezone changes. Caller holds the lock.
func (m *MetricsRegistry) rollDay(now time.Time) {
	date := now.In(m.loc).Format("2006-01-02")
	if date != m.daily.Date {
		m.daily = DailyCounters{Date: date}
	}
}

// avgResponse computes the moving average over the retained samples. Caller
// holds the lock.
func (m *MetricsRegistry) avgResponse() time.Duration {
	if len(m.respTimes) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.respTimes {
		total += d
	}
	return total / time.Duration(len(m.respTimes))
}

func prune(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rollingWindow)
	i := 0
	for ; i < len(times); i++ {
		if times[i].After(cutoff) {
			break
		}
	}
	return times[i:]
}

func pruneAndAppend(times []time.Time, now time.Time) []time.Time {
	return append(prune(times, now), now)
}
