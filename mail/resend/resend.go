// Package resend delivers mail through the Resend HTTP API using the
// retrying request pipeline. Each send carries a unique Idempotency-Key so
// retried attempts cannot double-deliver.
package resend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/agencykit/formrelay/apiclient"
	"github.com/agencykit/formrelay/mail"
)

// DefaultBaseURL is the production Resend API endpoint
const DefaultBaseURL = "https://api.resend.com"

// Sender implements mail.Sender against the Resend API
type Sender struct {
	apiKey string
	client *apiclient.Client
	logger *slog.Logger
}

var _ mail.Sender = (*Sender)(nil)

// Option configures a Sender
type Option func(*Sender) error

// WithBaseURL points the sender at a non-production endpoint
func WithBaseURL(baseURL string) Option {
	return func(s *Sender) error {
		client, err := apiclient.New(baseURL, nil, apiclient.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.client = client
		return nil
	}
}

// WithClient replaces the request pipeline client
func WithClient(client *apiclient.Client) Option {
	return func(s *Sender) error {
		if client != nil {
			s.client = client
		}
		return nil
	}
}

// WithLogger sets the sender's logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// New creates a Resend sender
func New(apiKey string, opts ...Option) (*Sender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	s := &Sender{
		apiKey: apiKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.client == nil {
		client, err := apiclient.New(DefaultBaseURL, nil, apiclient.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.client = client
	}
	return s, nil
}

// Name returns the provider identifier
func (s *Sender) Name() string {
	return "resend"
}

// sendRequest is the Resend /emails payload
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Send delivers one message through POST /emails
func (s *Sender) Send(ctx context.Context, msg *mail.Message) (*mail.Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(sendRequest{
		From:    msg.From,
		To:      msg.To,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	resp, err := s.client.Do(ctx, "/emails", apiclient.RequestConfig{
		Method: http.MethodPost,
		Body:   body,
		Headers: map[string]string{
			"Authorization":   "Bearer " + s.apiKey,
			"Idempotency-Key": uuid.NewString(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("resend send failed: %w", err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("unexpected resend response: %w", err)
	}
	return &mail.Receipt{ID: result.ID, Provider: s.Name()}, nil
}

// HealthCheck verifies the API key against GET /domains
func (s *Sender) HealthCheck(ctx context.Context) error {
	_, err := s.client.Do(ctx, "/domains", apiclient.RequestConfig{
		Headers: map[string]string{
			"Authorization": "Bearer " + s.apiKey,
		},
	})
	if err != nil {
		return fmt.Errorf("resend health check failed: %w", err)
	}
	return nil
}
