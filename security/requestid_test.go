package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	if len(id) != 22 {
		t.Errorf("request ID length = %d, want 22", len(id))
	}
	if !isValidRequestID(id) {
		t.Errorf("generated ID %q should be valid", id)
	}
	if id == GenerateRequestID() {
		t.Error("two generated IDs should never be identical")
	}
}

func TestIsValidRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"alphanumeric", "abc123XYZ", true},
		{"with hyphens and underscores", "req-id_42", true},
		{"empty", "", false},
		{"crlf injection", "abc\r\nSet-Cookie: x", false},
		{"too long", strings.Repeat("a", 129), false},
		{"max length", strings.Repeat("a", 128), true},
		{"special characters", "abc;def", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidRequestID(tt.id); got != tt.want {
				t.Errorf("isValidRequestID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		upstreamID string
		wantReuse  bool
	}{
		{"generates when missing", "", false},
		{"preserves valid upstream ID", "upstream-req-42", true},
		{"replaces invalid upstream ID", "bad id with spaces", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
			})

			req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
			if tt.upstreamID != "" {
				req.Header.Set(RequestIDHeader, tt.upstreamID)
			}
			w := httptest.NewRecorder()

			RequestIDMiddleware(inner).ServeHTTP(w, req)

			headerID := w.Header().Get(RequestIDHeader)
			if headerID == "" {
				t.Fatal("response should carry a request ID header")
			}
			if headerID != ctxID {
				t.Errorf("header ID %q != context ID %q", headerID, ctxID)
			}
			if tt.wantReuse && headerID != tt.upstreamID {
				t.Errorf("upstream ID %q should be preserved, got %q", tt.upstreamID, headerID)
			}
			if !tt.wantReuse && headerID == tt.upstreamID {
				t.Errorf("invalid upstream ID %q should be replaced", tt.upstreamID)
			}
		})
	}
}
