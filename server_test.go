package formrelay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/agencykit/formrelay/mail"
	"github.com/agencykit/formrelay/mail/mock"
	"github.com/agencykit/formrelay/security"
)

func TestNewServerValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := NewServer(nil, &Config{}, logger); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewServer(mock.NewMockSender(), nil, logger); err == nil {
		t.Error("expected error for nil config")
	}

	// A missing or short anti-forgery secret is a fatal startup check.
	if _, err := NewServer(mock.NewMockSender(), &Config{}, logger); err == nil {
		t.Error("expected error for missing secret")
	}
	if _, err := NewServer(mock.NewMockSender(), &Config{
		Token: TokenConfig{Secret: []byte("short")},
	}, logger); err == nil {
		t.Error("expected error for short secret")
	}

	srv, err := NewServer(mock.NewMockSender(), &Config{
		Token: TokenConfig{Secret: testSecret},
	}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer srv.Stop()
}

func TestProcessContactComposesMessage(t *testing.T) {
	srv, sender := newTestServer(t, nil)

	receipt, err := srv.ProcessContact(context.Background(), &ContactRequest{
		Name:        "John Doe",
		Email:       "john@example.com",
		Phone:       "1234567890",
		ProjectType: "Web Development",
		Message:     "A long enough test message",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Provider != "mock" {
		t.Errorf("unexpected receipt provider: %q", receipt.Provider)
	}

	msg := sender.LastSent()
	if msg.From != "forms@agency.example" {
		t.Errorf("unexpected from: %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "team@agency.example" {
		t.Errorf("unexpected recipients: %v", msg.To)
	}
	for _, want := range []string{"John Doe", "john@example.com", "1234567890", "Web Development", "A long enough test message"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message body missing %q: %s", want, msg.Text)
		}
	}
}

func TestProcessContactOmitsEmptyPhone(t *testing.T) {
	srv, sender := newTestServer(t, nil)

	_, err := srv.ProcessContact(context.Background(), &ContactRequest{
		Name:        "John Doe",
		Email:       "john@example.com",
		ProjectType: "Branding",
		Message:     "A long enough test message",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sender.LastSent().Text, "Phone:") {
		t.Errorf("expected no phone line: %s", sender.LastSent().Text)
	}
}

func TestProcessMeetingTemplate(t *testing.T) {
	srv, sender := newTestServer(t, nil)

	_, err := srv.ProcessMeeting(context.Background(), &MeetingRequest{
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Date:  "2026-09-15",
		Time:  "14:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := sender.LastSent()
	if !strings.Contains(msg.Subject, "meeting request from Jane Doe") {
		t.Errorf("unexpected subject: %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "Requested slot: 2026-09-15 at 14:00") {
		t.Errorf("expected slot line in body: %q", msg.Text)
	}
}

func TestProcessContactPropagatesSenderError(t *testing.T) {
	srv, sender := newTestServer(t, nil)
	want := errors.New("delivery refused")
	sender.SendFunc = func(ctx context.Context, msg *mail.Message) (*mail.Receipt, error) {
		return nil, want
	}

	_, err := srv.ProcessContact(context.Background(), &ContactRequest{
		Name:        "John Doe",
		Email:       "john@example.com",
		ProjectType: "Web Development",
		Message:     "A long enough test message",
	})
	if !errors.Is(err, want) {
		t.Errorf("expected sender error propagated, got %v", err)
	}
}

type stubLimiter struct {
	decision security.Decision
	err      error
	calls    int
}

func (s *stubLimiter) Check(ctx context.Context, clientID string) (security.Decision, error) {
	s.calls++
	return s.decision, s.err
}

func TestSetLimiterReplacesBackend(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	stub := &stubLimiter{decision: security.Decision{Allowed: true, Remaining: 9, ResetTime: time.Now()}}
	srv.SetLimiter(stub)

	d, err := srv.CheckRateLimit(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 || d.Remaining != 9 {
		t.Errorf("expected injected limiter consulted, calls=%d decision=%+v", stub.calls, d)
	}
}

func TestTokenRoundTripThroughServer(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	token := srv.Codec().Issue()
	if !srv.ValidateToken(token) {
		t.Error("freshly issued token must validate")
	}
	if srv.ValidateToken("a.b.c") {
		t.Error("garbage token must fail closed")
	}
}
