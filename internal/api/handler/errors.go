package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/logger"
	"github.com/mirella/binsight/internal/service"
)

// writeError maps a pipeline error to an HTTP status and a machine-readable
// body. Guard denials additionally carry the standard throttle headers so
// well-behaved clients can back off without parsing the body.
func writeError(c *gin.Context, err error) {
	var guardErr *service.GuardError
	if errors.As(err, &guardErr) {
		dec := guardErr.Decision
		retryAfter := int(dec.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", dec.Remaining))
		if !dec.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", dec.ResetAt.Unix()))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "too many requests",
			"code":       domain.ErrorCode(err),
			"retryAfter": retryAfter,
			"blocked":    errors.Is(err, domain.ErrBlocked),
		})
		return
	}

	code := domain.ErrorCode(err)
	switch {
	case errors.Is(err, domain.ErrBotRejected):
		// Deliberately opaque: automation clients get no hint about which
		// heuristic tripped.
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": code})

	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDecode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})

	case errors.Is(err, domain.ErrProviderQuota):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":         "classification quota exhausted, try again later",
			"code":          code,
			"demoAvailable": true,
		})

	case errors.Is(err, domain.ErrProviderTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error": "classification timed out, try again",
			"code":  code,
		})

	case errors.Is(err, domain.ErrProviderParse):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "classifier returned an unusable result",
			"code":  code,
		})

	case errors.Is(err, domain.ErrDatastore):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "temporarily unavailable, try again",
			"code":  code,
		})

	default:
		logger.CtxError(c.Request.Context(), "Unhandled pipeline error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal error",
			"code":  code,
		})
	}
}
