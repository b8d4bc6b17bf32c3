// Package formrelay implements a hardened backend for marketing-site
// contact and meeting forms: per-client rate limiting, stateless HMAC
// anti-forgery tokens, schema validation, sanitization, and delegation to a
// pluggable transactional email provider.
//
// # Architecture
//
// Server holds the submission logic and owns the security state (limiter,
// token codec, auditor). Handler is the HTTP adapter: it extracts the
// client identifier, runs the check sequence, and maps failures onto fixed
// client-facing responses (429, 403, 400, 500) that never leak internals.
//
// # Usage
//
//	sender, _ := resend.New(apiKey)
//	srv, err := formrelay.NewServer(sender, &formrelay.Config{
//	    Mode:  formrelay.ModeProduction,
//	    Token: formrelay.TokenConfig{Secret: secret},
//	    CORS:  formrelay.CORSConfig{AllowedOrigins: []string{"https://example.com"}},
//	    Mail:  formrelay.MailConfig{From: "forms@example.com", To: []string{"team@example.com"}},
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop()
//
//	h := formrelay.NewHandler(srv, logger)
//	mux.HandleFunc("/api/contact", h.ServeContact)
//	mux.HandleFunc("/api/meeting", h.ServeMeeting)
package formrelay
