// Package mock provides a mock implementation of the Sender interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/agencykit/formrelay/mail"
)

// MockSender is a mock implementation of the Sender interface for testing
type MockSender struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// SendFunc is called when Send() is invoked
	SendFunc func(ctx context.Context, msg *mail.Message) (*mail.Receipt, error)

	// HealthCheckFunc is called when HealthCheck() is invoked
	HealthCheckFunc func(ctx context.Context) error

	// Sent records every message passed to Send
	Sent []*mail.Message

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	mu sync.Mutex
}

// NewMockSender creates a mock sender with default implementations
func NewMockSender() *MockSender {
	return &MockSender{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		SendFunc: func(ctx context.Context, msg *mail.Message) (*mail.Receipt, error) {
			return &mail.Receipt{ID: "mock-message-1", Provider: "mock"}, nil
		},
		HealthCheckFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// Name returns the provider name
func (m *MockSender) Name() string {
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()
	if fn == nil {
		return "mock"
	}
	return fn()
}

// Send records the message and delegates to SendFunc
func (m *MockSender) Send(ctx context.Context, msg *mail.Message) (*mail.Receipt, error) {
	m.mu.Lock()
	m.CallCounts["Send"]++
	m.Sent = append(m.Sent, msg)
	fn := m.SendFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("SendFunc not configured")
	}
	return fn(ctx, msg)
}

// HealthCheck delegates to HealthCheckFunc
func (m *MockSender) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.CallCounts["HealthCheck"]++
	fn := m.HealthCheckFunc
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// SentCount returns how many messages were passed to Send
func (m *MockSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// LastSent returns the most recent message, or nil
func (m *MockSender) LastSent() *mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}
