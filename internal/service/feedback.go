package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/logger"
)

// FeedbackStore is the narrow persistence interface for user feedback.
type FeedbackStore interface {
	Create(ctx context.Context, fb *domain.Feedback) error
}

// FeedbackService records user corrections. Unlike the cache and event-log
// paths, a datastore failure here is surfaced: the write is retried with
// exponential backoff and then reported as retryable-unavailable, because a
// dropped correction is user-visible data loss.
type FeedbackService struct {
	store   FeedbackStore
	guard   *AbuseGuard
	log     *logger.Logger
	retries int

	// backoffBase is the first retry delay; doubled per attempt. Shortened
	// in tests.
	backoffBase time.Duration
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(store FeedbackStore, guard *AbuseGuard, log *logger.Logger, retries int) *FeedbackService {
	if retries < 1 {
		retries = 3
	}
	return &FeedbackService{
		store:       store,
		guard:       guard,
		log:         log,
		retries:     retries,
		backoffBase: 200 * time.Millisecond,
	}
}

// Submit validates and persists one feedback record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fb: feedback to persist.
//   - clientIP: throttle identity of the caller.
//
// Returns:
//   - error: *GuardError on denial, domain.ErrValidation on bad input,
//     domain.ErrDatastore after exhausted retries.
func (s *FeedbackService) Submit(ctx context.Context, fb *domain.Feedback, clientIP string) error {
	if fb.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}
	if !domain.IsKnownCategory(fb.CorrectedCategory) {
		return fmt.Errorf("%w: unknown corrected category %q", domain.ErrValidation, fb.CorrectedCategory)
	}
	fb.AssignedCategory = domain.NormalizeCategory(fb.AssignedCategory)
	fb.CorrectedCategory = domain.NormalizeCategory(fb.CorrectedCategory)

	dec := s.guard.Check(clientIP, EndpointFeedback, false)
	if !dec.Allowed {
		return &GuardError{Decision: dec}
	}

	var lastErr error
	backoff := s.backoffBase
	for attempt := 1; attempt <= s.retries; attempt++ {
		if lastErr = s.store.Create(ctx, fb); lastErr == nil {
			return nil
		}
		s.log.WithError(lastErr).WithField("attempt", attempt).Warn("Feedback write failed")
		if attempt < s.retries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", domain.ErrDatastore, ctx.Err())
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrDatastore, lastErr)
}
