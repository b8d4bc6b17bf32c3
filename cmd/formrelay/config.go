package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Mail provider identifiers used in appConfig.MailProvider.
const (
	providerResend = "resend"
	providerGraph  = "graph"
	providerMock   = "mock"
)

var (
	// errMissingCSRFSecret indicates the signing secret is not set
	errMissingCSRFSecret = errors.New("missing CSRF secret")

	// errMissingMailRecipient indicates no destination address is set
	errMissingMailRecipient = errors.New("missing mail recipient")

	// errInvalidProvider indicates the mail provider is not supported
	errInvalidProvider = errors.New("invalid mail provider")
)

// appConfig stores the process configuration.
// SECURITY: secrets (CSRF secret, API keys) are never logged.
type appConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Mode       string `mapstructure:"mode"`
	ServerURL  string `mapstructure:"server_url"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	RateLimitMax        int  `mapstructure:"rate_limit_max"`
	RateLimitWindowMS   int  `mapstructure:"rate_limit_window_ms"`
	RateLimitMaxEntries int  `mapstructure:"rate_limit_max_entries"`
	TrustProxy          bool `mapstructure:"trust_proxy"`
	TrustedProxyCount   int  `mapstructure:"trusted_proxy_count"`

	CSRFSecret    string `mapstructure:"csrf_secret"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`

	MailProvider string   `mapstructure:"mail_provider"`
	MailFrom     string   `mapstructure:"mail_from"`
	MailTo       []string `mapstructure:"mail_to"`

	ResendAPIKey string `mapstructure:"resend_api_key"`

	GraphTenantID     string `mapstructure:"graph_tenant_id"`
	GraphClientID     string `mapstructure:"graph_client_id"`
	GraphClientSecret string `mapstructure:"graph_client_secret"`
	GraphMailbox      string `mapstructure:"graph_mailbox"`

	RedisAddr string `mapstructure:"redis_addr"`

	OpsLogTokenHash string `mapstructure:"ops_log_token_hash"`
	AuditLogging    bool   `mapstructure:"audit_logging"`

	LogLevel      string `mapstructure:"log_level"`
	LogBufferSize int    `mapstructure:"log_buffer_size"`
}

// rateLimitWindow returns the configured window as a duration
func (c *appConfig) rateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// tokenTTL returns the configured token lifetime as a duration
func (c *appConfig) tokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// loadConfig reads configuration from an optional formrelay.yaml in the
// working directory plus FORMRELAY_* environment variables, env taking
// priority.
func loadConfig() (*appConfig, error) {
	v := viper.New()
	v.SetConfigName("formrelay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env and defaults carry it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("mode", "development")

	v.SetDefault("rate_limit_max", 5)
	v.SetDefault("rate_limit_window_ms", 60000)
	v.SetDefault("rate_limit_max_entries", 10000)
	v.SetDefault("trust_proxy", false)
	v.SetDefault("trusted_proxy_count", 1)

	v.SetDefault("token_ttl_hours", 24)

	v.SetDefault("mail_provider", providerMock)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_buffer_size", 1000)
}

// bindEnvVariables binds environment variables explicitly so the
// recognized surface stays auditable.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("listen_addr", "FORMRELAY_LISTEN_ADDR")
	mustBind("mode", "FORMRELAY_MODE")
	mustBind("server_url", "FORMRELAY_SERVER_URL")
	mustBind("cors_origins", "FORMRELAY_CORS_ORIGINS")

	mustBind("rate_limit_max", "FORMRELAY_RATE_LIMIT_MAX")
	mustBind("rate_limit_window_ms", "FORMRELAY_RATE_LIMIT_WINDOW_MS")
	mustBind("rate_limit_max_entries", "FORMRELAY_RATE_LIMIT_MAX_ENTRIES")
	mustBind("trust_proxy", "FORMRELAY_TRUST_PROXY")
	mustBind("trusted_proxy_count", "FORMRELAY_TRUSTED_PROXY_COUNT")

	mustBind("csrf_secret", "FORMRELAY_CSRF_SECRET")
	mustBind("token_ttl_hours", "FORMRELAY_TOKEN_TTL_HOURS")

	mustBind("mail_provider", "FORMRELAY_MAIL_PROVIDER")
	mustBind("mail_from", "FORMRELAY_MAIL_FROM")
	mustBind("mail_to", "FORMRELAY_MAIL_TO")
	mustBind("resend_api_key", "RESEND_API_KEY")
	mustBind("graph_tenant_id", "FORMRELAY_GRAPH_TENANT_ID")
	mustBind("graph_client_id", "FORMRELAY_GRAPH_CLIENT_ID")
	mustBind("graph_client_secret", "FORMRELAY_GRAPH_CLIENT_SECRET")
	mustBind("graph_mailbox", "FORMRELAY_GRAPH_MAILBOX")

	mustBind("redis_addr", "FORMRELAY_REDIS_ADDR")

	mustBind("ops_log_token_hash", "FORMRELAY_OPS_LOG_TOKEN_HASH")
	mustBind("audit_logging", "FORMRELAY_AUDIT_LOGGING")

	mustBind("log_level", "FORMRELAY_LOG_LEVEL")
	mustBind("log_buffer_size", "FORMRELAY_LOG_BUFFER_SIZE")
}

// validate fails fast on configuration the server cannot start with
func (c *appConfig) validate() error {
	if c.CSRFSecret == "" {
		return fmt.Errorf("%w: set FORMRELAY_CSRF_SECRET (at least 32 bytes)", errMissingCSRFSecret)
	}
	if len(c.MailTo) == 0 && c.MailProvider != providerMock {
		return fmt.Errorf("%w: set FORMRELAY_MAIL_TO", errMissingMailRecipient)
	}

	switch c.MailProvider {
	case providerResend:
		if c.ResendAPIKey == "" {
			return fmt.Errorf("mail provider %q requires RESEND_API_KEY", providerResend)
		}
	case providerGraph:
		if c.GraphTenantID == "" || c.GraphClientID == "" || c.GraphClientSecret == "" || c.GraphMailbox == "" {
			return fmt.Errorf("mail provider %q requires tenant, client ID, client secret and mailbox", providerGraph)
		}
	case providerMock:
	default:
		return fmt.Errorf("%w: %q (expected resend, graph or mock)", errInvalidProvider, c.MailProvider)
	}

	return nil
}
