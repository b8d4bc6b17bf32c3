package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// SECURITY WARNING: Never log actual sensitive values (anti-forgery tokens,
// API keys, raw email addresses of visitors) in traces or metrics. Only log
// metadata such as token presence, form names, and validation results.
const (
	// Submission attributes
	AttrFormName       = "form.name"
	AttrFormOutcome    = "form.outcome"
	AttrTokenPresent   = "form.token_present"
	AttrInvalidFields  = "form.invalid_fields"
	AttrRateLimited    = "form.rate_limited"
	AttrRateLimitReset = "form.rate_limit_reset"

	// Mail provider attributes
	AttrMailProvider  = "mail.provider"
	AttrMailReceiptID = "mail.receipt_id"

	// Security attributes
	AttrClientIP       = "security.client_ip"
	AttrAuditEventType = "security.audit.event_type"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddSubmissionAttributes adds form submission attributes to a span (nil-safe)
func AddSubmissionAttributes(span trace.Span, form, outcome string) {
	if form != "" {
		SetSpanAttributes(span, attribute.String(AttrFormName, form))
	}
	if outcome != "" {
		SetSpanAttributes(span, attribute.String(AttrFormOutcome, outcome))
	}
}

// AddMailAttributes adds mail provider attributes to a span (nil-safe)
func AddMailAttributes(span trace.Span, provider, receiptID string) {
	if provider != "" {
		SetSpanAttributes(span, attribute.String(AttrMailProvider, provider))
	}
	if receiptID != "" {
		SetSpanAttributes(span, attribute.String(AttrMailReceiptID, receiptID))
	}
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds security-related attributes to a span (nil-safe).
//
// PRIVACY NOTE: Client IP addresses may be considered PII. Check
// instrumentation.ShouldLogClientIPs() before calling.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
