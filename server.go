package formrelay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agencykit/formrelay/instrumentation"
	"github.com/agencykit/formrelay/internal/util"
	"github.com/agencykit/formrelay/mail"
	"github.com/agencykit/formrelay/security"
)

// Server implements the form relay logic: rate limiting, anti-forgery
// validation, payload validation, sanitization, and delegation to the email
// collaborator. The HTTP adapter lives in Handler.
type Server struct {
	sender  mail.Sender
	codec   *security.Codec
	limiter security.Limiter
	auditor *security.Auditor
	inst    *instrumentation.Instrumentation
	logger  *slog.Logger
	config  *Config

	// owned is the in-process limiter to stop on shutdown, nil when a
	// custom limiter was injected
	owned *security.WindowLimiter
}

// NewServer creates a form relay server. The anti-forgery secret is a fatal
// startup check; token operations never fail per-request.
func NewServer(sender mail.Sender, config *Config, logger *slog.Logger) (*Server, error) {
	if sender == nil {
		return nil, fmt.Errorf("mail sender is required")
	}
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Logger != nil {
		logger = config.Logger
	}

	config = applySecureDefaults(config, logger)

	codecOpts := []security.CodecOption{}
	if config.Token.TTL > 0 {
		codecOpts = append(codecOpts, security.WithTokenTTL(config.Token.TTL))
	}
	codec, err := security.NewCodec(config.Token.Secret, codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("anti-forgery secret: %w", err)
	}

	limiter := security.NewWindowLimiter(
		config.RateLimit.MaxRequests,
		config.RateLimit.Window,
		config.RateLimit.MaxEntries,
		logger,
	)

	s := &Server{
		sender:  sender,
		codec:   codec,
		limiter: limiter,
		owned:   limiter,
		logger:  logger,
		config:  config,
	}

	if config.Ops.EnableAuditLogging {
		s.auditor = security.NewAuditor(logger, true)
	}

	return s, nil
}

// SetLimiter replaces the rate limiter, e.g. with the Redis-backed one for
// multi-instance deployments. The previously owned in-memory limiter is
// stopped.
func (s *Server) SetLimiter(l security.Limiter) {
	if l == nil {
		return
	}
	if s.owned != nil {
		s.owned.Stop()
		s.owned = nil
	}
	s.limiter = l
}

// SetInstrumentation attaches OpenTelemetry instrumentation
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst != nil && s.owned != nil {
		limiter := s.owned
		if err := inst.RegisterLimiterSizeCallback(func() int64 {
			return int64(limiter.GetStats().CurrentEntries)
		}); err != nil {
			s.logger.Warn("Failed to register limiter size gauge", "error", err)
		}
	}
}

// SetAuditor replaces the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.auditor = aud
}

// Config returns the effective configuration
func (s *Server) Config() *Config {
	return s.config
}

// Codec returns the anti-forgery token codec
func (s *Server) Codec() *security.Codec {
	return s.codec
}

// Stop releases background resources
func (s *Server) Stop() {
	if s.owned != nil {
		s.owned.Stop()
	}
}

// CheckRateLimit applies the per-client submission limit
func (s *Server) CheckRateLimit(ctx context.Context, clientID string) (security.Decision, error) {
	return s.limiter.Check(ctx, clientID)
}

// ValidateToken verifies an anti-forgery token, failing closed
func (s *Server) ValidateToken(token string) bool {
	return s.codec.Validate(token)
}

// ProcessContact sanitizes an already-validated contact submission and
// forwards it to the email collaborator.
func (s *Server) ProcessContact(ctx context.Context, req *ContactRequest) (*mail.Receipt, error) {
	clean := sanitizeContact(req)

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", clean.Name)
	fmt.Fprintf(&b, "Email: %s\n", clean.Email)
	if clean.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", clean.Phone)
	}
	fmt.Fprintf(&b, "Project type: %s\n", clean.ProjectType)
	fmt.Fprintf(&b, "\n%s\n", clean.Message)

	msg := &mail.Message{
		From:    s.config.Mail.From,
		To:      s.config.Mail.To,
		ReplyTo: clean.Email,
		Subject: fmt.Sprintf("New contact form submission from %s", clean.Name),
		Text:    b.String(),
	}

	return s.deliver(ctx, FormContact, clean.Email, msg)
}

// ProcessMeeting forwards a meeting request with its own message template
func (s *Server) ProcessMeeting(ctx context.Context, req *MeetingRequest) (*mail.Receipt, error) {
	clean := sanitizeMeeting(req)

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", clean.Name)
	fmt.Fprintf(&b, "Email: %s\n", clean.Email)
	if clean.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", clean.Phone)
	}
	fmt.Fprintf(&b, "Requested slot: %s at %s\n", clean.Date, clean.Time)
	if clean.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", clean.Message)
	}

	msg := &mail.Message{
		From:    s.config.Mail.From,
		To:      s.config.Mail.To,
		ReplyTo: clean.Email,
		Subject: fmt.Sprintf("New meeting request from %s", clean.Name),
		Text:    b.String(),
	}

	return s.deliver(ctx, FormMeeting, clean.Email, msg)
}

// deliver hands a composed message to the sender and records the outcome
func (s *Server) deliver(ctx context.Context, form, replyEmail string, msg *mail.Message) (*mail.Receipt, error) {
	start := time.Now()
	receipt, err := s.sender.Send(ctx, msg)
	duration := time.Since(start)

	if s.inst != nil {
		s.inst.Metrics().RecordEmailSend(ctx, s.sender.Name(), float64(duration.Milliseconds()), err)
	}

	if err != nil {
		s.logger.Error("Email delivery failed",
			"form", form,
			"provider", s.sender.Name(),
			"duration", duration,
			"error", err)
		return nil, err
	}

	s.logger.Info("Email delivered",
		"form", form,
		"provider", s.sender.Name(),
		"receipt_id", receipt.ID,
		"reply_to", util.MaskEmail(replyEmail),
		"duration", duration)
	return receipt, nil
}
