// Package graph delivers mail through Microsoft Graph sendMail using an
// OAuth2 client-credentials token source. Intended for deployments that
// relay through a Microsoft 365 mailbox instead of a transactional API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/agencykit/formrelay/internal/util"
	"github.com/agencykit/formrelay/mail"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	tokenURLFormat      = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	defaultScope        = "https://graph.microsoft.com/.default"
	requestTimeout      = 15 * time.Second
)

// Config holds the Azure AD application credentials
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Mailbox is the user principal the message is sent as
	Mailbox string

	// BaseURL overrides the Graph endpoint, for tests
	BaseURL string
}

// Sender implements mail.Sender over Microsoft Graph
type Sender struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ mail.Sender = (*Sender)(nil)

// New creates a Graph sender. The returned sender owns an http.Client whose
// transport injects client-credentials bearer tokens.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Sender, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("graph sender requires tenant ID, client ID and client secret")
	}
	if cfg.Mailbox == "" {
		return nil, fmt.Errorf("graph sender requires a mailbox")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLFormat, cfg.TenantID),
		Scopes:       []string{defaultScope},
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}

	client := cc.Client(ctx)
	client.Timeout = requestTimeout

	return &Sender{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Name returns the provider identifier
func (s *Sender) Name() string {
	return "graph"
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func toRecipients(addrs []string) []graphRecipient {
	out := make([]graphRecipient, len(addrs))
	for i, a := range addrs {
		out[i].EmailAddress.Address = a
	}
	return out
}

// Send delivers one message via POST /users/{mailbox}/sendMail
func (s *Sender) Send(ctx context.Context, msg *mail.Message) (*mail.Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	contentType, content := "Text", msg.Text
	if msg.HTML != "" {
		contentType, content = "HTML", msg.HTML
	}

	payload := map[string]any{
		"message": map[string]any{
			"subject": msg.Subject,
			"body": map[string]string{
				"contentType": contentType,
				"content":     content,
			},
			"toRecipients": toRecipients(msg.To),
		},
		"saveToSentItems": false,
	}
	if msg.ReplyTo != "" {
		payload["message"].(map[string]any)["replyTo"] = toRecipients([]string{msg.ReplyTo})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s/sendMail", s.baseURL, s.cfg.Mailbox)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph send failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Graph returns 202 Accepted with an empty body on success.
	if resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Error("graph sendMail rejected",
			"status", resp.StatusCode,
			"detail", util.SafeTruncate(string(detail), 500))
		return nil, fmt.Errorf("graph sendMail returned status %d", resp.StatusCode)
	}

	return &mail.Receipt{Provider: s.Name()}, nil
}

// HealthCheck fetches the mailbox resource to verify credentials
func (s *Sender) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/users/%s", s.baseURL, s.cfg.Mailbox)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graph health check returned status %d", resp.StatusCode)
	}
	return nil
}
