package formrelay

import (
	"log/slog"
	"time"
)

// Runtime modes. Production tightens CORS and disables debug surfaces.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config holds the form relay configuration.
// Structured using composition for better organization and maintainability.
type Config struct {
	// Mode selects the runtime profile: "development" or "production".
	// Default: development
	Mode string

	// ServerURL is the public base URL this service is reachable at.
	// Used for security headers (HSTS is only set for https URLs).
	ServerURL string

	// CORS configures cross-origin access for browser clients
	CORS CORSConfig

	// RateLimit configures the per-client submission limiter
	RateLimit RateLimitConfig

	// Token configures the anti-forgery token codec
	Token TokenConfig

	// Mail configures message addressing
	Mail MailConfig

	// Ops configures operator-only surfaces
	Ops OpsConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to submit forms.
	// In production exactly one configured origin is echoed back;
	// outside production an empty list falls back to the wildcard.
	AllowedOrigins []string

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int
}

// RateLimitConfig holds submission rate limiting configuration
type RateLimitConfig struct {
	// MaxRequests is the number of submissions allowed per client per window.
	// Default: 5
	MaxRequests int

	// Window is the rate limit window.
	// Default: 1 minute
	Window time.Duration

	// MaxEntries caps the number of tracked clients (LRU eviction).
	// Default: 10000
	MaxEntries int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this
	// service, used to pick the client IP out of X-Forwarded-For.
	// Default: 1
	TrustedProxyCount int
}

// TokenConfig holds anti-forgery token settings
type TokenConfig struct {
	// Secret signs tokens. Required; must be at least 32 bytes.
	// A missing secret is a fatal startup error, never a per-request one.
	Secret []byte

	// TTL is how long issued tokens validate.
	// Default: 24 hours
	TTL time.Duration
}

// MailConfig holds message addressing configuration
type MailConfig struct {
	// From is the sender address messages are delivered as
	From string

	// To lists the destination addresses for form submissions
	To []string
}

// OpsConfig holds operator-only settings
type OpsConfig struct {
	// LogTokenHash is the bcrypt hash of the bearer token that unlocks
	// the log inspection endpoint. Empty disables the endpoint.
	// The endpoint is never served in production regardless of this value.
	LogTokenHash string

	// EnableAuditLogging enables security audit logging.
	// Logs submissions, rejections, and send failures (addresses hashed).
	EnableAuditLogging bool
}

// applySecureDefaults applies secure-by-default configuration values and
// warns about risky combinations.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	if config.Mode == "" {
		config.Mode = ModeDevelopment
	}

	if config.RateLimit.MaxRequests <= 0 {
		config.RateLimit.MaxRequests = 5
	}
	if config.RateLimit.Window <= 0 {
		config.RateLimit.Window = time.Minute
	}
	if config.RateLimit.TrustedProxyCount <= 0 {
		config.RateLimit.TrustedProxyCount = 1
	}
	if config.CORS.MaxAge <= 0 {
		config.CORS.MaxAge = 3600
	}

	if config.Mode == ModeProduction {
		if len(config.CORS.AllowedOrigins) == 0 {
			logger.Warn("No CORS origin configured in production; browser submissions will be rejected",
				"recommendation", "set exactly one allowed origin")
		}
		if len(config.CORS.AllowedOrigins) > 1 {
			logger.Warn("Multiple CORS origins configured in production; only the first is used",
				"origins", len(config.CORS.AllowedOrigins))
		}
		for _, origin := range config.CORS.AllowedOrigins {
			if origin == "*" {
				logger.Warn("Wildcard CORS origin in production",
					"risk", "any site can submit forms",
					"recommendation", "use the site's exact origin")
			}
		}
	}

	if config.RateLimit.TrustProxy {
		logger.Warn("Proxy headers trusted for client identification; ensure a trusted proxy sets them",
			"trusted_proxy_count", config.RateLimit.TrustedProxyCount)
	}

	return config
}
