package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditor_Disabled(t *testing.T) {
	a, buf := newCapturedAuditor(false)

	a.LogSubmissionAccepted("contact", "john@example.com", "1.2.3.4")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor should not log, got: %s", buf.String())
	}
}

func TestAuditor_HashesEmail(t *testing.T) {
	a, buf := newCapturedAuditor(true)

	a.LogSubmissionAccepted("contact", "john@example.com", "1.2.3.4")

	out := buf.String()
	if strings.Contains(out, "john@example.com") {
		t.Error("raw email address must never appear in audit output")
	}
	if !strings.Contains(out, EventSubmissionAccepted) {
		t.Errorf("expected event type %q in output: %s", EventSubmissionAccepted, out)
	}
	if !strings.Contains(out, "1.2.3.4") {
		t.Errorf("expected IP in output: %s", out)
	}
}

func TestAuditor_TokenRejectedRecordsPresenceOnly(t *testing.T) {
	a, buf := newCapturedAuditor(true)

	a.LogTokenRejected("contact", "1.2.3.4", true)

	out := buf.String()
	if !strings.Contains(out, "had_token=true") {
		t.Errorf("expected had_token flag in output: %s", out)
	}
}

func TestAuditor_ValidationFailedRecordsFieldNames(t *testing.T) {
	a, buf := newCapturedAuditor(true)

	a.LogValidationFailed("contact", "1.2.3.4", []string{"email", "message"})

	out := buf.String()
	if !strings.Contains(out, "email") || !strings.Contains(out, "message") {
		t.Errorf("expected field names in output: %s", out)
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want \"<empty>\"", got)
	}
	h := hashForLogging("john@example.com")
	if len(h) != 16 {
		t.Errorf("hash length = %d, want 16", len(h))
	}
	if h == hashForLogging("jane@example.com") {
		t.Error("different inputs should hash differently")
	}
}
