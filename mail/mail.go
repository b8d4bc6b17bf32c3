// Package mail defines the outbound email abstraction. Providers live in
// subpackages; the server depends only on Sender.
package mail

import (
	"context"
	"fmt"
	"strings"
)

// Message is a single transactional email
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Validate checks the fields every provider requires
func (m *Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	for _, to := range m.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("invalid recipient address: %q", to)
		}
	}
	if m.Subject == "" {
		return fmt.Errorf("message has no subject")
	}
	if m.HTML == "" && m.Text == "" {
		return fmt.Errorf("message has no body")
	}
	return nil
}

// Receipt identifies an accepted message at the provider
type Receipt struct {
	ID       string
	Provider string
}

// Sender delivers messages through a transactional email provider
type Sender interface {
	// Name returns the provider identifier used in logs
	Name() string

	// Send delivers a message. The returned Receipt carries the
	// provider-assigned message ID when the provider reports one.
	Send(ctx context.Context, msg *Message) (*Receipt, error)

	// HealthCheck verifies the provider is reachable and credentials work
	HealthCheck(ctx context.Context) error
}
