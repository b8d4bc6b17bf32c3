// Package apiclient implements the outbound request pipeline: bounded
// retries with exponential backoff, a per-attempt timeout, and automatic
// anti-forgery token attachment. Timeouts and 4xx responses are terminal;
// transport failures and 5xx responses are retried up to the attempt limit.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/agencykit/formrelay/security"
)

const (
	// DefaultTimeout bounds a single attempt, not the whole request
	DefaultTimeout = 10 * time.Second

	// DefaultAttempts is the total number of attempts including the first
	DefaultAttempts = 3

	// maxResponseBody caps how much of an upstream body is read
	maxResponseBody = 1 << 20

	// genericFailure is the only failure message surfaced for timeouts
	// and exhausted retries
	genericFailure = "Request failed"

	csrfHeader = "x-csrf-token"
)

// RequestConfig describes a single logical request. Zero values select
// defaults: GET, DefaultTimeout, DefaultAttempts.
type RequestConfig struct {
	Method   string
	Headers  map[string]string
	Body     []byte
	Timeout  time.Duration
	Attempts int
}

// Response is the uniform pipeline result. Exactly one of Data and Err is
// meaningful; Status always carries the final HTTP status, or a synthetic
// 500 when no response was ever received.
type Response struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Err    string          `json:"error,omitempty"`
}

// Client issues requests against a single base URL
type Client struct {
	baseURL    string
	httpClient *http.Client
	codec      *security.Codec
	limiter    *rate.Limiter
	logger     *slog.Logger

	// backoffUnit scales the 2^attempt backoff; shortened in tests
	backoffUnit time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for attempt and outcome records
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimiter paces outbound attempts. Each attempt waits for a token
// before dialing; a nil limiter disables pacing.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// New creates a Client. The codec is used to mint a fresh anti-forgery
// token for every request; it may be nil for unauthenticated upstreams.
func New(baseURL string, codec *security.Codec, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		codec:       codec,
		logger:      slog.Default(),
		backoffUnit: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do executes the request pipeline for one endpoint. The returned Response
// is always non-nil; on failure the error is an *Error carrying the
// failure Kind and final status.
func (c *Client) Do(ctx context.Context, endpoint string, cfg RequestConfig) (*Response, error) {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var token string
	if c.codec != nil {
		token = c.codec.Issue()
	}

	lastStatus := 0
	lastMsg := ""

	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &Response{Status: http.StatusInternalServerError, Err: genericFailure},
					&Error{Kind: KindTransport, Status: http.StatusInternalServerError, Message: genericFailure, Err: err}
			}
		}

		resp, apiErr := c.attempt(ctx, method, reqURL, token, cfg, timeout, attempt)
		if apiErr == nil {
			c.logger.Info("request succeeded",
				"method", method,
				"url", reqURL,
				"status", resp.Status,
				"attempt", attempt)
			return resp, nil
		}

		if apiErr.Status != 0 {
			lastStatus = apiErr.Status
		}
		if apiErr.Message != "" {
			lastMsg = apiErr.Message
		}

		if !apiErr.Retryable() || attempt == attempts {
			c.logger.Error("request failed",
				"method", method,
				"url", reqURL,
				"status", apiErr.Status,
				"kind", apiErr.Kind.String(),
				"attempt", attempt,
				"error", apiErr.Err)
			return terminalResponse(apiErr), apiErr
		}

		backoff := time.Duration(1<<attempt) * c.backoffUnit
		c.logger.Warn("request attempt failed, retrying",
			"method", method,
			"url", reqURL,
			"status", apiErr.Status,
			"kind", apiErr.Kind.String(),
			"attempt", attempt,
			"backoff", backoff)

		select {
		case <-ctx.Done():
			err := &Error{Kind: KindTransport, Status: synthStatus(lastStatus), Message: genericFailure, Err: ctx.Err()}
			return terminalResponse(err), err
		case <-time.After(backoff):
		}
	}

	// Unreachable: the loop always returns on the final attempt.
	err := &Error{Kind: KindServer, Status: synthStatus(lastStatus), Message: fallbackMsg(lastMsg)}
	return terminalResponse(err), err
}

// attempt performs one HTTP round trip and classifies the outcome
func (c *Client) attempt(ctx context.Context, method, reqURL, token string, cfg RequestConfig, timeout time.Duration, attempt int) (*Response, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(cfg.Body) > 0 {
		body = bytes.NewReader(cfg.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, reqURL, body)
	if err != nil {
		return nil, &Error{Kind: KindClientError, Status: http.StatusInternalServerError, Message: genericFailure, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(csrfHeader, token)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		// A fired per-attempt timeout is terminal, never retried.
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Status: http.StatusInternalServerError, Message: genericFailure, Err: err}
		}
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindTimeout, Status: http.StatusInternalServerError, Message: genericFailure, Err: ctx.Err()}
		}
		return nil, &Error{Kind: KindTransport, Status: http.StatusInternalServerError, Message: genericFailure, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if readErr != nil {
		raw = nil
	}

	// Malformed bodies are tolerated as an empty object.
	data := json.RawMessage(raw)
	if !json.Valid(raw) {
		data = json.RawMessage(`{}`)
	}

	status := httpResp.StatusCode
	switch {
	case status < http.StatusBadRequest:
		c.logger.Debug("attempt completed",
			"method", method,
			"url", reqURL,
			"status", status,
			"duration", duration,
			"attempt", attempt)
		return &Response{Status: status, Data: data}, nil

	case status < http.StatusInternalServerError:
		msg := upstreamMessage(data)
		return nil, &Error{Kind: KindClientError, Status: status, Message: msg}

	default:
		return nil, &Error{Kind: KindServer, Status: status, Message: upstreamMessage(data)}
	}
}

// upstreamMessage pulls a human-readable error out of a failure payload
func upstreamMessage(data json.RawMessage) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return genericFailure
}

func terminalResponse(e *Error) *Response {
	return &Response{Status: synthStatus(e.Status), Err: fallbackMsg(e.Message)}
}

func synthStatus(status int) int {
	if status == 0 {
		return http.StatusInternalServerError
	}
	return status
}

func fallbackMsg(msg string) string {
	if msg == "" {
		return genericFailure
	}
	return msg
}

func isTimeout(err error) bool {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Timeout()
	}
	return false
}
