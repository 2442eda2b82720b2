package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mirella/binsight/internal/config"
	"github.com/mirella/binsight/internal/domain"
)

func guardConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:         true,
		SustainedLimit:  20,
		SustainedWindow: time.Hour,
		BurstLimit:      5,
		BurstWindow:     10 * time.Second,
		BlockDuration:   15 * time.Minute,
	}
}

// testClock drives the guard's injected clock.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(cfg config.RateLimitConfig) (*AbuseGuard, *testClock) {
	clock := newTestClock()
	g := NewAbuseGuard(cfg, testLogger())
	g.now = clock.now
	return g, clock
}

func TestGuardDisabled(t *testing.T) {
	cfg := guardConfig()
	cfg.Enabled = false
	g, _ := newTestGuard(cfg)

	for i := 0; i < 1000; i++ {
		if dec := g.Check("1.2.3.4", EndpointClassify, false); !dec.Allowed {
			t.Fatalf("disabled guard denied request %d", i)
		}
	}
}

func TestGuardBurstLimit(t *testing.T) {
	g, clock := newTestGuard(guardConfig())

	// 5 rapid requests pass, the 6th trips the burst throttle.
	for i := 0; i < 5; i++ {
		if dec := g.Check("1.2.3.4", EndpointClassify, false); !dec.Allowed {
			t.Fatalf("request %d should pass, got %v", i+1, dec.Err)
		}
		clock.advance(time.Second)
	}
	dec := g.Check("1.2.3.4", EndpointClassify, false)
	if dec.Allowed {
		t.Fatal("6th rapid request should be denied")
	}
	if !errors.Is(dec.Err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", dec.Err)
	}
	if dec.RetryAfter != 15*time.Minute {
		t.Errorf("retry after = %v, want block duration", dec.RetryAfter)
	}
}

func TestGuardFollowUpSkipsBurst(t *testing.T) {
	g, _ := newTestGuard(guardConfig())

	// Clarification resubmissions arrive back-to-back with the original
	// request; they must not trip the burst window.
	for i := 0; i < 10; i++ {
		if dec := g.Check("1.2.3.4", EndpointClassify, true); !dec.Allowed {
			t.Fatalf("follow-up %d denied: %v", i+1, dec.Err)
		}
	}
}

func TestGuardSustainedWindowReset(t *testing.T) {
	cfg := guardConfig()
	cfg.BurstLimit = 1000 // keep the burst throttle out of the way
	g, clock := newTestGuard(cfg)

	for i := 0; i < 20; i++ {
		if dec := g.Check("1.2.3.4", EndpointClassify, false); !dec.Allowed {
			t.Fatalf("request %d denied early: %v", i+1, dec.Err)
		}
		clock.advance(time.Minute)
	}
	// 20 minutes in, quota exhausted but window not yet elapsed.
	if dec := g.Check("1.2.3.4", EndpointClassify, false); dec.Allowed {
		t.Fatal("21st request inside window should be denied")
	}

	// The block itself expires after 15 minutes; by then the hour window has
	// also rolled over, so a fresh accounting period starts.
	clock.advance(time.Hour)
	dec := g.Check("1.2.3.4", EndpointClassify, false)
	if !dec.Allowed {
		t.Fatalf("request after window and block expiry denied: %v", dec.Err)
	}
	if dec.Remaining != 19 {
		t.Errorf("remaining = %d, want fresh quota of 19", dec.Remaining)
	}
}

func TestGuardBlockIsSticky(t *testing.T) {
	cfg := guardConfig()
	cfg.BurstLimit = 2
	cfg.BurstWindow = time.Second
	cfg.BlockDuration = time.Hour
	g, clock := newTestGuard(cfg)

	g.Check("1.2.3.4", EndpointClassify, false)
	g.Check("1.2.3.4", EndpointClassify, false)
	if dec := g.Check("1.2.3.4", EndpointClassify, false); dec.Allowed {
		t.Fatal("burst overflow should be denied")
	}

	// The burst window has long passed, but the block outlives it.
	clock.advance(30 * time.Minute)
	dec := g.Check("1.2.3.4", EndpointClassify, false)
	if dec.Allowed {
		t.Fatal("blocked client allowed before block expiry")
	}
	if !errors.Is(dec.Err, domain.ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked", dec.Err)
	}
	if dec.RetryAfter != 30*time.Minute {
		t.Errorf("retry after = %v, want remaining 30m", dec.RetryAfter)
	}

	// Block expiry resets all counters.
	clock.advance(31 * time.Minute)
	if dec := g.Check("1.2.3.4", EndpointClassify, false); !dec.Allowed {
		t.Fatalf("client still denied after block expiry: %v", dec.Err)
	}
}

func TestGuardTracksActivityOnDenial(t *testing.T) {
	cfg := guardConfig()
	cfg.BurstLimit = 1
	g, clock := newTestGuard(cfg)

	g.Check("1.2.3.4", EndpointClassify, false)
	clock.advance(2 * time.Second)
	if dec := g.Check("1.2.3.4", EndpointClassify, false); dec.Allowed {
		t.Fatal("second burst request should be denied")
	}

	g.mu.Lock()
	state := g.clients["1.2.3.4|"+EndpointClassify]
	g.mu.Unlock()
	if !state.lastRequestAt.Equal(clock.now()) {
		t.Errorf("lastRequestAt = %v, want %v (the denied request's time)",
			state.lastRequestAt, clock.now())
	}
}

func TestGuardKeysAreIndependent(t *testing.T) {
	cfg := guardConfig()
	cfg.BurstLimit = 1
	g, _ := newTestGuard(cfg)

	g.Check("1.2.3.4", EndpointClassify, false)
	if dec := g.Check("1.2.3.4", EndpointClassify, false); dec.Allowed {
		t.Fatal("second burst request should be denied")
	}

	// A different client and a different endpoint class both have their own
	// counters.
	if dec := g.Check("5.6.7.8", EndpointClassify, false); !dec.Allowed {
		t.Error("other client should not share the block")
	}
	if dec := g.Check("1.2.3.4", EndpointFeedback, false); !dec.Allowed {
		t.Error("other endpoint class should not share the block")
	}
}

func TestCheckAgent(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		reject    bool
	}{
		{name: "curl", userAgent: "curl/8.4.0", reject: true},
		{name: "python requests", userAgent: "python-requests/2.31", reject: true},
		{name: "go http client", userAgent: "Go-http-client/2.0", reject: true},
		{name: "generic bot", userAgent: "SomeIndexBot/1.0", reject: true},
		{name: "headless chrome", userAgent: "Mozilla/5.0 HeadlessChrome/120.0", reject: true},
		{name: "safari", userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Version/17.0 Mobile/15E148 Safari/604.1", reject: false},
		{name: "chrome", userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", reject: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newTestGuard(guardConfig())
			err := g.CheckAgent("1.2.3.4", EndpointClassify, tc.userAgent, true)
			if tc.reject && !errors.Is(err, domain.ErrBotRejected) {
				t.Errorf("user-agent %q should be rejected, got %v", tc.userAgent, err)
			}
			if !tc.reject && err != nil {
				t.Errorf("user-agent %q should pass, got %v", tc.userAgent, err)
			}
		})
	}
}

func TestCheckAgentMissingHeadersFlaggedNotRejected(t *testing.T) {
	g, _ := newTestGuard(guardConfig())

	err := g.CheckAgent("1.2.3.4", EndpointClassify, "Mozilla/5.0 Chrome/120.0", false)
	if err != nil {
		t.Fatalf("missing headers must not reject, got %v", err)
	}

	events := g.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Kind != EventSuspiciousHeaders {
		t.Errorf("event kind = %q, want %q", events[0].Kind, EventSuspiciousHeaders)
	}
}

func TestGuardRecordsDecisions(t *testing.T) {
	cfg := guardConfig()
	cfg.BurstLimit = 1
	g, _ := newTestGuard(cfg)

	g.Check("1.2.3.4", EndpointClassify, false)
	g.Check("1.2.3.4", EndpointClassify, false) // denied
	g.Check("1.2.3.4", EndpointClassify, false) // already blocked

	events := g.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	wantKinds := []string{EventAllowed, EventRateLimited, EventBlockedRejected}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Errorf("event[%d].Kind = %q, want %q", i, events[i].Kind, want)
		}
	}
}

func TestEventRingEviction(t *testing.T) {
	ring := newEventRing(securityEventCapacity)
	total := securityEventCapacity + 25
	for i := 0; i < total; i++ {
		ring.append(SecurityEvent{Detail: fmt.Sprintf("event-%d", i)})
	}

	events := ring.snapshot()
	if len(events) != securityEventCapacity {
		t.Fatalf("snapshot length = %d, want %d", len(events), securityEventCapacity)
	}
	if events[0].Detail != "event-25" {
		t.Errorf("oldest retained = %q, want event-25", events[0].Detail)
	}
	if events[len(events)-1].Detail != fmt.Sprintf("event-%d", total-1) {
		t.Errorf("newest retained = %q, want event-%d", events[len(events)-1].Detail, total-1)
	}
}
