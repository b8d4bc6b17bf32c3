package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the form relay
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Submission Metrics
	SubmissionsTotal metric.Int64Counter

	// Security Metrics
	RateLimitExceeded       metric.Int64Counter
	TokenValidationFailed   metric.Int64Counter
	PayloadValidationFailed metric.Int64Counter
	RateLimitTrackedClients metric.Int64ObservableGauge

	// Mail Provider Metrics
	EmailSendTotal    metric.Int64Counter
	EmailSendDuration metric.Float64Histogram
	EmailSendErrors   metric.Int64Counter

	// Audit Metrics
	AuditEventsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	mailMeter := inst.Meter("mail")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"formrelay.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"formrelay.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.SubmissionsTotal, err = serverMeter.Int64Counter(
		"formrelay.submissions.total",
		metric.WithDescription("Number of form submissions processed, by form and outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submissions.total counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"formrelay.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.TokenValidationFailed, err = securityMeter.Int64Counter(
		"formrelay.token.validation_failed",
		metric.WithDescription("Number of anti-forgery token rejections"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.validation_failed counter: %w", err)
	}

	m.PayloadValidationFailed, err = securityMeter.Int64Counter(
		"formrelay.payload.validation_failed",
		metric.WithDescription("Number of schema validation failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payload.validation_failed counter: %w", err)
	}

	m.RateLimitTrackedClients, err = securityMeter.Int64ObservableGauge(
		"formrelay.rate_limit.tracked_clients",
		metric.WithDescription("Number of client entries currently tracked by the rate limiter"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.tracked_clients gauge: %w", err)
	}

	m.EmailSendTotal, err = mailMeter.Int64Counter(
		"formrelay.email.send.total",
		metric.WithDescription("Total number of email send attempts"),
		metric.WithUnit("{send}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create email.send.total counter: %w", err)
	}

	m.EmailSendDuration, err = mailMeter.Float64Histogram(
		"formrelay.email.send.duration",
		metric.WithDescription("Email send duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create email.send.duration histogram: %w", err)
	}

	m.EmailSendErrors, err = mailMeter.Int64Counter(
		"formrelay.email.send.errors.total",
		metric.WithDescription("Total number of failed email sends"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create email.send.errors.total counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"formrelay.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordSubmission records a processed form submission and its outcome
func (m *Metrics) RecordSubmission(ctx context.Context, form, outcome string) {
	m.SubmissionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("form", form),
		attribute.String("outcome", outcome),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, form string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("form", form),
	))
}

// RecordTokenValidationFailed records an anti-forgery token rejection
func (m *Metrics) RecordTokenValidationFailed(ctx context.Context, form string, hadToken bool) {
	m.TokenValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("form", form),
		attribute.Bool("had_token", hadToken),
	))
}

// RecordPayloadValidationFailed records a schema validation failure
func (m *Metrics) RecordPayloadValidationFailed(ctx context.Context, form string, fieldCount int) {
	m.PayloadValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("form", form),
		attribute.Int("field_count", fieldCount),
	))
}

// RecordEmailSend records an email send attempt
func (m *Metrics) RecordEmailSend(ctx context.Context, provider string, durationMs float64, err error) {
	m.EmailSendTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", err == nil),
	))
	m.EmailSendDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
	))
	if err != nil {
		m.EmailSendErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
		))
	}
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
