// Command formrelay runs the form relay HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/agencykit/formrelay"
	"github.com/agencykit/formrelay/instrumentation"
	"github.com/agencykit/formrelay/logging"
	"github.com/agencykit/formrelay/mail"
	"github.com/agencykit/formrelay/mail/graph"
	"github.com/agencykit/formrelay/mail/mock"
	"github.com/agencykit/formrelay/mail/resend"
	"github.com/agencykit/formrelay/security"
	redislimiter "github.com/agencykit/formrelay/security/redis"
)

// version is set at build time via -ldflags
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "formrelay:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ring := logging.NewRingHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}),
		cfg.LogBufferSize,
	)
	logger := slog.New(ring)
	slog.SetDefault(logger)

	logger.Info("Starting formrelay",
		"version", version,
		"mode", cfg.Mode,
		"listen_addr", cfg.ListenAddr,
		"mail_provider", cfg.MailProvider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender, err := buildSender(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building mail sender: %w", err)
	}

	srv, err := formrelay.NewServer(sender, &formrelay.Config{
		Mode:      cfg.Mode,
		ServerURL: cfg.ServerURL,
		CORS: formrelay.CORSConfig{
			AllowedOrigins: cfg.CORSOrigins,
		},
		RateLimit: formrelay.RateLimitConfig{
			MaxRequests:       cfg.RateLimitMax,
			Window:            cfg.rateLimitWindow(),
			MaxEntries:        cfg.RateLimitMaxEntries,
			TrustProxy:        cfg.TrustProxy,
			TrustedProxyCount: cfg.TrustedProxyCount,
		},
		Token: formrelay.TokenConfig{
			Secret: []byte(cfg.CSRFSecret),
			TTL:    cfg.tokenTTL(),
		},
		Mail: formrelay.MailConfig{
			From: cfg.MailFrom,
			To:   cfg.MailTo,
		},
		Ops: formrelay.OpsConfig{
			LogTokenHash:       cfg.OpsLogTokenHash,
			EnableAuditLogging: cfg.AuditLogging,
		},
	}, logger)
	if err != nil {
		return err
	}
	defer srv.Stop()

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "formrelay",
		ServiceVersion: version,
		Enabled:        true,
	})
	if err != nil {
		return fmt.Errorf("initializing instrumentation: %w", err)
	}
	srv.SetInstrumentation(inst)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter, err := redislimiter.NewLimiter(rdb, cfg.RateLimitMax, cfg.rateLimitWindow(),
			redislimiter.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("connecting redis limiter: %w", err)
		}
		srv.SetLimiter(limiter)
		logger.Info("Using redis-backed rate limiter", "addr", cfg.RedisAddr)
	}

	handler := formrelay.NewHandler(srv, logger)
	handler.SetRingHandler(ring)

	router := mux.NewRouter()
	router.Use(security.RequestIDMiddleware)
	router.HandleFunc("/api/contact", handler.ServeContact).Methods(http.MethodPost)
	router.HandleFunc("/api/contact", handler.ServePreflight).Methods(http.MethodOptions)
	router.HandleFunc("/api/meeting", handler.ServeMeeting).Methods(http.MethodPost)
	router.HandleFunc("/api/meeting", handler.ServePreflight).Methods(http.MethodOptions)
	router.HandleFunc("/healthz", handler.ServeHealth).Methods(http.MethodGet)
	router.HandleFunc("/ops/logs", handler.ServeLogs).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

// buildSender selects the configured mail provider
func buildSender(ctx context.Context, cfg *appConfig, logger *slog.Logger) (mail.Sender, error) {
	switch cfg.MailProvider {
	case providerResend:
		return resend.New(cfg.ResendAPIKey, resend.WithLogger(logger))
	case providerGraph:
		return graph.New(ctx, graph.Config{
			TenantID:     cfg.GraphTenantID,
			ClientID:     cfg.GraphClientID,
			ClientSecret: cfg.GraphClientSecret,
			Mailbox:      cfg.GraphMailbox,
		}, logger)
	default:
		logger.Warn("Using mock mail sender; submissions are not delivered",
			"recommendation", "set FORMRELAY_MAIL_PROVIDER to resend or graph")
		return mock.NewMockSender(), nil
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
