package apiclient

import "fmt"

// Kind classifies a pipeline failure. The kind and the HTTP status are
// always present on Error; callers never probe optional fields to decide
// retry behavior.
type Kind int

const (
	// KindClientError is a 4xx upstream response, never retried
	KindClientError Kind = iota
	// KindTimeout is a fired per-attempt timeout, never retried
	KindTimeout
	// KindTransport is a network-level failure, retried
	KindTransport
	// KindServer is a 5xx upstream response, retried
	KindServer
)

// String returns the kind's log label
func (k Kind) String() string {
	switch k {
	case KindClientError:
		return "client_error"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the pipeline's failure type. Status is always set, synthesized
// to 500 when no HTTP response was received.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may follow this failure
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindServer
}
