package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agencykit/formrelay/security"
)

func testCodec(t *testing.T) *security.Codec {
	t.Helper()
	codec, err := security.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return codec
}

func testClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	c, err := New(baseURL, testCodec(t), opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	c.backoffUnit = time.Millisecond
	return c
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", nil); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := New("https://api.example.com", nil); err != nil {
		t.Errorf("unexpected error for valid base URL: %v", err)
	}
}

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.Do(context.Background(), "/messages", RequestConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.Status)
	}
	if string(resp.Data) != `{"id":"msg-1"}` {
		t.Errorf("unexpected data: %s", resp.Data)
	}
	if resp.Err != "" {
		t.Errorf("expected empty error, got %q", resp.Err)
	}
}

func TestDoAttachesFreshToken(t *testing.T) {
	codec := testCodec(t)
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("x-csrf-token")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, codec, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if _, err := c.Do(context.Background(), "send", RequestConfig{Method: http.MethodPost}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotToken == "" {
		t.Fatal("expected anti-forgery token header on outbound request")
	}
	if !codec.Validate(gotToken) {
		t.Errorf("attached token did not validate: %q", gotToken)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	start := time.Now()
	resp, err := c.Do(context.Background(), "/send", RequestConfig{Method: http.MethodPost})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 calls, got %d", got)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.Status)
	}
	// Backoff after attempts 1 and 2: 2 and 4 units.
	if elapsed := time.Since(start); elapsed < 6*time.Millisecond {
		t.Errorf("expected backoff delays between attempts, elapsed %v", elapsed)
	}
}

func TestDoClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.Do(context.Background(), "/send", RequestConfig{Method: http.MethodPost})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 call for client error, got %d", got)
	}
	if resp.Status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.Status)
	}
	if resp.Err != "invalid recipient" {
		t.Errorf("expected upstream message, got %q", resp.Err)
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Kind != KindClientError {
		t.Errorf("expected client_error kind, got %s", apiErr.Kind)
	}
	if apiErr.Retryable() {
		t.Error("client errors must not be retryable")
	}
}

func TestDoTimeoutIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.Do(context.Background(), "/send", RequestConfig{Timeout: 20 * time.Millisecond})
	if err == nil {
		t.Fatal("expected error for timed-out request")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 call for timeout, got %d", got)
	}
	if resp.Status != http.StatusInternalServerError {
		t.Errorf("expected synthetic status 500, got %d", resp.Status)
	}
	if resp.Err != "Request failed" {
		t.Errorf("expected generic message, got %q", resp.Err)
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %s", apiErr.Kind)
	}
}

func TestDoExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.Do(context.Background(), "/send", RequestConfig{Attempts: 2})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
	if resp.Status != http.StatusBadGateway {
		t.Errorf("expected last known status 502, got %d", resp.Status)
	}
	if resp.Err != "upstream unavailable" {
		t.Errorf("expected last error message, got %q", resp.Err)
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Kind != KindServer {
		t.Errorf("expected server kind, got %s", apiErr.Kind)
	}
}

func TestDoTransportFailureRetried(t *testing.T) {
	// A server that is immediately closed produces connection refusals.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := testClient(t, addr)
	resp, err := c.Do(context.Background(), "/send", RequestConfig{Attempts: 2})
	if err == nil {
		t.Fatal("expected error for unreachable upstream")
	}
	if resp.Status != http.StatusInternalServerError {
		t.Errorf("expected synthetic status 500, got %d", resp.Status)
	}
	if resp.Err != "Request failed" {
		t.Errorf("expected generic message, got %q", resp.Err)
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Kind != KindTransport {
		t.Errorf("expected transport kind, got %s", apiErr.Kind)
	}
}

func TestDoMalformedBodyTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.Do(context.Background(), "/send", RequestConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Data) != `{}` {
		t.Errorf("expected empty object substitute, got %s", resp.Data)
	}
	if !json.Valid(resp.Data) {
		t.Error("substituted data is not valid JSON")
	}
}

func TestDoDefaults(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	if _, err := c.Do(context.Background(), "status", RequestConfig{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("expected default GET, got %s", gotMethod)
	}
}

func TestDoSendsBodyAndHeaders(t *testing.T) {
	var gotBody, gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Do(context.Background(), "/emails", RequestConfig{
		Method:  http.MethodPost,
		Body:    []byte(`{"to":"a@b.c"}`),
		Headers: map[string]string{"Authorization": "Bearer key"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != `{"to":"a@b.c"}` {
		t.Errorf("unexpected body: %q", gotBody)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if !strings.HasPrefix(gotContentType, "application/json") {
		t.Errorf("unexpected content type: %q", gotContentType)
	}
}

func TestDoContextCancellationDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	c.backoffUnit = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Do(ctx, "/send", RequestConfig{})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("backoff did not respect cancellation, took %v", elapsed)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindClientError, "client_error"},
		{KindTimeout, "timeout"},
		{KindTransport, "transport"},
		{KindServer, "server"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
