package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldScanID is the client-supplied scan idempotency key
	FieldScanID = "scan_id"

	// FieldSessionID is the client session identifier
	FieldSessionID = "session_id"

	// FieldClientIP is the throttle identity of the caller
	FieldClientIP = "client_ip"

	// FieldFingerprint is the perceptual hash of the submitted image
	FieldFingerprint = "fingerprint"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldOutcome is the classification outcome kind
	FieldOutcome = "outcome"

	// FieldCacheHit marks whether a scan was served from the cache
	FieldCacheHit = "cache_hit"
)
