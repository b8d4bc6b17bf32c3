package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xForwardedFor     string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.5:54321",
			want:       "203.0.113.5",
		},
		{
			name:          "xff ignored when proxy untrusted",
			remoteAddr:    "203.0.113.5:54321",
			xForwardedFor: "1.2.3.4",
			want:          "203.0.113.5",
		},
		{
			name:              "xff honored behind one trusted proxy",
			remoteAddr:        "10.0.0.1:1234",
			xForwardedFor:     "1.2.3.4",
			trustProxy:        true,
			trustedProxyCount: 1,
			want:              "1.2.3.4",
		},
		{
			name:              "xff with two trusted proxies",
			remoteAddr:        "10.0.0.1:1234",
			xForwardedFor:     "1.2.3.4, 198.51.100.7, 10.0.0.2",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "1.2.3.4",
		},
		{
			name:              "x-real-ip fallback",
			remoteAddr:        "10.0.0.1:1234",
			xRealIP:           "1.2.3.4",
			trustProxy:        true,
			trustedProxyCount: 1,
			want:              "1.2.3.4",
		},
		{
			name:              "invalid xff entry falls through",
			remoteAddr:        "10.0.0.1:1234",
			xForwardedFor:     "not-an-ip",
			xRealIP:           "1.2.3.4",
			trustProxy:        true,
			trustedProxyCount: 1,
			want:              "1.2.3.4",
		},
		{
			name:       "no address at all",
			remoteAddr: "",
			want:       UnknownClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/contact", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				r.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := GetClientIP(r, tt.trustProxy, tt.trustedProxyCount)
			if got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
