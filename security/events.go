package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Submission lifecycle events

	// EventSubmissionAccepted is logged when a form submission passes every check
	EventSubmissionAccepted = "submission_accepted"

	// EventSendFailed is logged when the upstream email provider rejects a send
	EventSendFailed = "send_failed"

	// Security violation events

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventTokenRejected is logged when an anti-forgery token is missing or invalid
	EventTokenRejected = "token_rejected"

	// EventValidationFailed is logged when payload schema validation fails
	EventValidationFailed = "validation_failed"

	// EventOpsAccessDenied is logged when an ops endpoint request fails authentication
	EventOpsAccessDenied = "ops_access_denied"
)
