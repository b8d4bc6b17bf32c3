package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Email     string // hashed before logging
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"email_hash", hashForLogging(event.Email),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogSubmissionAccepted logs a form submission that passed every check
func (a *Auditor) LogSubmissionAccepted(form, email, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventSubmissionAccepted,
		Email:     email,
		IPAddress: ipAddress,
		Details: map[string]any{
			"form": form,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(form, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"form": form,
		},
	})
}

// LogTokenRejected logs an anti-forgery token failure.
// Only whether a token was present at all is recorded, never its value.
func (a *Auditor) LogTokenRejected(form, ipAddress string, hadToken bool) {
	a.LogEvent(Event{
		Type:      EventTokenRejected,
		IPAddress: ipAddress,
		Details: map[string]any{
			"form":      form,
			"had_token": hadToken,
		},
	})
}

// LogValidationFailed logs a schema validation failure.
// Only the offending field names are recorded, never the submitted values.
func (a *Auditor) LogValidationFailed(form, ipAddress string, fields []string) {
	a.LogEvent(Event{
		Type:      EventValidationFailed,
		IPAddress: ipAddress,
		Details: map[string]any{
			"form":   form,
			"fields": fields,
		},
	})
}

// LogSendFailed logs an upstream email delivery failure
func (a *Auditor) LogSendFailed(form, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventSendFailed,
		IPAddress: ipAddress,
		Details: map[string]any{
			"form":   form,
			"reason": reason,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
