package service

import (
	"strings"
	"sync"
	"time"

	"github.com/mirella/binsight/internal/config"
	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/logger"
)

// Endpoint classes for throttle accounting. Each class has its own counters
// per client.
const (
	EndpointClassify = "classify"
	EndpointFeedback = "feedback"
)

// Security event kinds recorded by the guard.
const (
	EventAllowed           = "allowed"
	EventRateLimited       = "rate_limited"
	EventBlockedRejected   = "blocked_rejected"
	EventBotRejected       = "bot_rejected"
	EventSuspiciousHeaders = "suspicious_headers"
)

// securityEventCapacity bounds the in-memory event ring buffer.
const securityEventCapacity = 1000

// botSignatures are substrings of user-agent strings belonging to known
// automation tools. Matched case-insensitively, rejected before any throttle
// accounting.
var botSignatures = []string{
	"curl",
	"wget",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"okhttp",
	"java/",
	"scrapy",
	"httpclient",
	"libwww",
	"phantomjs",
	"headlesschrome",
	"selenium",
	"bot",
	"spider",
	"crawler",
}

// SecurityEvent is one guard decision, kept for later inspection. The ring
// buffer is the only persistence the guard has; it never touches the
// durable datastore.
type SecurityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	ClientID  string    `json:"client_id"`
	Endpoint  string    `json:"endpoint"`
	Detail    string    `json:"detail,omitempty"`
}

// Decision is the outcome of a guard check. When Allowed is false, Err
// carries the error kind and RetryAfter tells the caller how long to wait.
type Decision struct {
	Allowed    bool
	Err        error
	RetryAfter time.Duration
	Remaining  int       // sustained-window quota left
	ResetAt    time.Time // when the sustained window resets
}

// clientState tracks one client's counters for one endpoint class. Protected
// by the guard mutex; check-then-increment happens under the lock so the
// counters are race-free under concurrent requests.
type clientState struct {
	count         int
	windowStart   time.Time
	burstCount    int
	burstStart    time.Time
	lastRequestAt time.Time
	blocked       bool
	blockedUntil  time.Time
}

// AbuseGuard applies per-client throttling, burst suppression, temporary
// blocking and heuristic bot rejection before any expensive work happens.
// Identity is IP-based: client-supplied identifiers are attacker-controllable
// and must never be used for throttle keying.
//
// State lives in process memory only; a multi-instance deployment needs an
// external shared store for globally consistent limits.
type AbuseGuard struct {
	cfg config.RateLimitConfig
	log *logger.Logger

	mu      sync.Mutex
	clients map[string]*clientState
	events  *eventRing

	// now is injectable for tests.
	now func() time.Time
}

// NewAbuseGuard creates a new AbuseGuard.
// Parameters:
//   - cfg: throttle limits, window durations and the master enable flag.
//   - log: structured logger.
//
// Returns:
//   - *AbuseGuard: initialized guard with empty state.
func NewAbuseGuard(cfg config.RateLimitConfig, log *logger.Logger) *AbuseGuard {
	return &AbuseGuard{
		cfg:     cfg,
		log:     log,
		clients: make(map[string]*clientState),
		events:  newEventRing(securityEventCapacity),
		now:     time.Now,
	}
}

// CheckAgent runs the heuristic bot filter. Known automation signatures are
// rejected outright, before any throttle accounting. Requests missing
// conventional browser-like headers are flagged and logged but not rejected.
// Parameters:
//   - clientIP: throttle identity of the caller.
//   - endpoint: endpoint class, for the security event.
//   - userAgent: declared client-agent string.
//   - hasBrowserHeaders: whether conventional Accept/Accept-Language headers
//     were present.
//
// Returns:
//   - error: domain.ErrBotRejected on a signature match, nil otherwise.
func (g *AbuseGuard) CheckAgent(clientIP, endpoint, userAgent string, hasBrowserHeaders bool) error {
	ua := strings.ToLower(userAgent)
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			g.record(EventBotRejected, clientIP, endpoint, "user-agent: "+userAgent)
			g.log.WithFields(logger.Fields{
				logger.FieldClientIP: clientIP,
				"user_agent":         userAgent,
			}).Warn("Rejected automation client")
			return domain.ErrBotRejected
		}
	}
	if !hasBrowserHeaders {
		g.record(EventSuspiciousHeaders, clientIP, endpoint, "missing browser-like headers")
		g.log.WithField(logger.FieldClientIP, clientIP).Info("Suspicious request: missing browser-like headers")
	}
	return nil
}

// Check applies the sustained and burst throttles for one request.
// Clarification follow-up calls are expected to burst, so isFollowUp
// suppresses the burst window for them. Exceeding either limit puts the
// client into the sticky blocked state for the configured cool-down; once
// that passes, state resets to a fresh accounting period.
// Parameters:
//   - clientIP: throttle identity of the caller.
//   - endpointClass: endpoint class being accessed.
//   - isFollowUp: true for clarification resubmissions.
//
// Returns:
//   - Decision: allow/deny with retry and quota information.
func (g *AbuseGuard) Check(clientIP, endpointClass string, isFollowUp bool) Decision {
	if !g.cfg.Enabled {
		return Decision{Allowed: true, Remaining: g.cfg.SustainedLimit}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	key := clientIP + "|" + endpointClass
	state, ok := g.clients[key]
	if !ok {
		state = &clientState{windowStart: now, burstStart: now}
		g.clients[key] = state
	}

	// Sticky block: denied until blockedUntil passes, regardless of whether
	// the accounting window would have reset. Expiry resets the whole state.
	if state.blocked {
		if now.Before(state.blockedUntil) {
			state.lastRequestAt = now
			retry := state.blockedUntil.Sub(now)
			g.record(EventBlockedRejected, clientIP, endpointClass, "")
			return Decision{
				Allowed:    false,
				Err:        domain.ErrBlocked,
				RetryAfter: retry,
				ResetAt:    state.blockedUntil,
			}
		}
		*state = clientState{windowStart: now, burstStart: now}
	}

	// Every gated request updates the activity timestamp, including the one
	// that trips a throttle below.
	state.lastRequestAt = now

	// Burst window: a much shorter secondary throttle that trips before the
	// sustained window would under rapid-fire traffic.
	if !isFollowUp {
		if now.Sub(state.burstStart) > g.cfg.BurstWindow {
			state.burstStart = now
			state.burstCount = 0
		}
		state.burstCount++
		if state.burstCount > g.cfg.BurstLimit {
			return g.block(state, clientIP, endpointClass, "burst limit exceeded", now)
		}
	}

	// Sustained window.
	if now.Sub(state.windowStart) > g.cfg.SustainedWindow {
		state.windowStart = now
		state.count = 0
	}
	state.count++
	if state.count > g.cfg.SustainedLimit {
		return g.block(state, clientIP, endpointClass, "sustained limit exceeded", now)
	}

	g.record(EventAllowed, clientIP, endpointClass, "")
	return Decision{
		Allowed:   true,
		Remaining: g.cfg.SustainedLimit - state.count,
		ResetAt:   state.windowStart.Add(g.cfg.SustainedWindow),
	}
}

// block transitions a client into the blocked state. Caller holds the lock.
func (g *AbuseGuard) block(state *clientState, clientIP, endpointClass, detail string, now time.Time) Decision {
	state.blocked = true
	state.blockedUntil = now.Add(g.cfg.BlockDuration)
	g.record(EventRateLimited, clientIP, endpointClass, detail)
	g.log.WithFields(logger.Fields{
		logger.FieldClientIP: clientIP,
		"endpoint":           endpointClass,
		"blocked_until":      state.blockedUntil,
	}).Warnf("Client blocked: %s", detail)
	return Decision{
		Allowed:    false,
		Err:        domain.ErrRateLimited,
		RetryAfter: g.cfg.BlockDuration,
		ResetAt:    state.blockedUntil,
	}
}

// record appends a security event. Caller may or may not hold the guard
// mutex; the ring has its own lock.
func (g *AbuseGuard) record(kind, clientID, endpoint, detail string) {
	g.events.append(SecurityEvent{
		Timestamp: g.now(),
		Kind:      kind,
		ClientID:  clientID,
		Endpoint:  endpoint,
		Detail:    detail,
	})
}

// Events returns a copy of the recorded security events, oldest first.
func (g *AbuseGuard) Events() []SecurityEvent {
	return g.events.snapshot()
}

// eventRing is a fixed-capacity ring buffer of security events. Oldest
// entries are evicted first.
type eventRing struct {
	mu   sync.Mutex
	buf  []SecurityEvent
	next int
	full bool
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]SecurityEvent, capacity)}
}

func (r *eventRing) append(ev SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *eventRing) snapshot() []SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]SecurityEvent, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]SecurityEvent, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}
