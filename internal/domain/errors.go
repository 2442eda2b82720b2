package domain

import "errors"

// Sentinel error kinds for the classification pipeline. Handlers map these
// to HTTP status codes and machine-readable codes via ErrorCode, so callers
// can tell retryable conditions (timeout, rate limit) from permanent ones.
var (
	// ErrDecode means the submitted image could not be decoded. The request
	// is rejected before any cache or throttle state is mutated.
	ErrDecode = errors.New("image data could not be decoded")

	// ErrValidation means a required request field is missing or malformed.
	ErrValidation = errors.New("request validation failed")

	// ErrRateLimited means a throttle window limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBlocked means the client is in the sticky blocked state.
	ErrBlocked = errors.New("client temporarily blocked")

	// ErrBotRejected means the request matched an automation signature.
	ErrBotRejected = errors.New("request rejected")

	// ErrProviderQuota means the external classifier refused for quota
	// reasons. Surfaced as a retry-in-demo-mode hint, not a hard failure.
	ErrProviderQuota = errors.New("classifier quota exceeded")

	// ErrProviderTimeout means the external classifier call timed out.
	ErrProviderTimeout = errors.New("classifier call timed out")

	// ErrProviderParse means the classifier returned unparseable output.
	ErrProviderParse = errors.New("classifier returned unparseable result")

	// ErrDatastore means the persistent datastore is unavailable. Cache and
	// event-log paths swallow this; the feedback path retries then surfaces.
	ErrDatastore = errors.New("datastore unavailable")
)

// ErrorCode returns the machine-readable code for a pipeline error, or
// "internal_error" for anything unrecognized. Raw internal error text is
// never sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return "invalid_image"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrBotRejected):
		return "forbidden"
	case errors.Is(err, ErrProviderQuota):
		return "quota_exceeded"
	case errors.Is(err, ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, ErrProviderParse):
		return "provider_parse_error"
	case errors.Is(err, ErrDatastore):
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
