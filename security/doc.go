// Package security implements the request-protection layer shared by the
// formrelay endpoints: HMAC-signed anti-forgery tokens, fixed-window rate
// limiting with LRU-bounded memory, client IP extraction behind proxies,
// security response headers, request ID propagation, and audit logging with
// hashed PII.
//
// All components take an injected *slog.Logger and, where time matters, an
// injectable clock, so tests can construct isolated deterministic instances.
package security
