package formrelay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/agencykit/formrelay/instrumentation"
	"github.com/agencykit/formrelay/logging"
	"github.com/agencykit/formrelay/security"
)

const (
	defaultCORSMaxAge = 3600 // 1 hour default for preflight cache

	// csrfTokenHeader carries the anti-forgery token on submissions
	csrfTokenHeader = "x-csrf-token"

	// maxBodyBytes caps inbound submission bodies
	maxBodyBytes = 64 << 10
)

// Handler is the HTTP adapter over Server
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer

	// ring, when set, backs the operator log inspection endpoint
	ring *logging.RingHandler
}

// NewHandler creates the HTTP adapter
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}

	if server.inst != nil {
		h.tracer = server.inst.Tracer("http")
	}

	return h
}

// SetRingHandler attaches the in-memory log buffer served by ServeLogs
func (h *Handler) SetRingHandler(ring *logging.RingHandler) {
	h.ring = ring
}

// ServeContact handles POST contact form submissions
func (h *Handler) ServeContact(w http.ResponseWriter, r *http.Request) {
	h.handleSubmission(w, r, FormContact)
}

// ServeMeeting handles POST meeting requests. Meeting submissions run the
// same rate-limit and anti-forgery checks as contact submissions.
func (h *Handler) ServeMeeting(w http.ResponseWriter, r *http.Request) {
	h.handleSubmission(w, r, FormMeeting)
}

// handleSubmission runs the submission sequence, short-circuiting on the
// first failure: rate limit, token, schema, sanitize, send.
func (h *Handler) handleSubmission(w http.ResponseWriter, r *http.Request, form string) {
	startTime := time.Now()

	ctx := r.Context()
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "submission."+form)
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.config.ServerURL)
	h.setCORSHeaders(w, r)

	if r.Method != http.MethodPost {
		h.writeError(w, NewAPIError(ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed))
		h.finishRequest(r, form, http.StatusMethodNotAllowed, startTime, span)
		return
	}

	clientIP := security.GetClientIP(r,
		h.server.config.RateLimit.TrustProxy,
		h.server.config.RateLimit.TrustedProxyCount)

	decision, err := h.server.CheckRateLimit(ctx, clientIP)
	if err != nil {
		// Limiter backend failure fails open; abuse mitigation is
		// best-effort and must not take submissions down with it.
		h.logger.Error("Rate limiter unavailable, allowing request",
			"form", form, "error", err)
	} else {
		h.setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			h.logger.Warn("Submission rate limit exceeded",
				"form", form,
				"client_ip", clientIP,
				"reset_time", decision.ResetTime)
			if h.server.auditor != nil {
				h.server.auditor.LogRateLimitExceeded(form, clientIP)
			}
			h.recordRateLimitExceeded(ctx, form)
			apiErr := ErrRateLimited()
			h.writeErrorWithReset(w, apiErr, decision.ResetTime)
			h.finishRequest(r, form, apiErr.Status, startTime, span)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		apiErr := ErrInvalidRequest()
		h.logger.Error("Failed to read request body", "form", form, "error", err)
		h.writeError(w, apiErr)
		h.finishRequest(r, form, apiErr.Status, startTime, span)
		return
	}

	token := r.Header.Get(csrfTokenHeader)
	if !h.server.ValidateToken(token) {
		h.logger.Warn("Anti-forgery token rejected",
			"form", form,
			"client_ip", clientIP,
			"had_token", token != "")
		if h.server.auditor != nil {
			h.server.auditor.LogTokenRejected(form, clientIP, token != "")
		}
		h.recordTokenRejected(ctx, form, token != "")
		apiErr := ErrInvalidToken()
		h.writeError(w, apiErr)
		h.finishRequest(r, form, apiErr.Status, startTime, span)
		return
	}

	status := h.dispatchForm(ctx, w, form, body, clientIP)
	h.finishRequest(r, form, status, startTime, span)
}

// dispatchForm parses, validates, and processes one submission, returning
// the response status it wrote.
func (h *Handler) dispatchForm(ctx context.Context, w http.ResponseWriter, form string, body []byte, clientIP string) int {
	var (
		fieldErrs []FieldError
		process   func(context.Context) error
		email     string
	)

	switch form {
	case FormMeeting:
		var req MeetingRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return h.writeParseFailure(w, form, err)
		}
		fieldErrs = ValidateMeeting(&req)
		email = req.Email
		process = func(ctx context.Context) error {
			_, err := h.server.ProcessMeeting(ctx, &req)
			return err
		}
	default:
		var req ContactRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return h.writeParseFailure(w, form, err)
		}
		fieldErrs = ValidateContact(&req)
		email = req.Email
		process = func(ctx context.Context) error {
			_, err := h.server.ProcessContact(ctx, &req)
			return err
		}
	}

	if len(fieldErrs) > 0 {
		fields := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			fields[i] = fe.Field
		}
		// Field names only; the raw body never reaches the logs.
		h.logger.Warn("Submission validation failed",
			"form", form,
			"client_ip", clientIP,
			"fields", strings.Join(fields, ","))
		if h.server.auditor != nil {
			h.server.auditor.LogValidationFailed(form, clientIP, fields)
		}
		h.recordValidationFailed(ctx, form, len(fieldErrs))
		apiErr := ErrValidationFailed(fieldErrs)
		h.writeError(w, apiErr)
		h.recordSubmission(ctx, form, "validation_failed")
		return apiErr.Status
	}

	if err := process(ctx); err != nil {
		if h.server.auditor != nil {
			h.server.auditor.LogSendFailed(form, clientIP, err.Error())
		}
		instrumentation.RecordError(spanFromContext(ctx), err)
		apiErr := ErrSendFailed()
		h.writeError(w, apiErr)
		h.recordSubmission(ctx, form, "send_failed")
		return apiErr.Status
	}

	if h.server.auditor != nil {
		h.server.auditor.LogSubmissionAccepted(form, email, clientIP)
	}
	h.recordSubmission(ctx, form, "accepted")
	h.writeJSON(w, http.StatusOK, SubmissionResponse{
		Success: true,
		Message: "Thank you! We will get back to you shortly.",
	})
	return http.StatusOK
}

func (h *Handler) writeParseFailure(w http.ResponseWriter, form string, err error) int {
	// Malformed JSON is treated as a server-boundary failure, not a
	// validation response.
	h.logger.Error("Failed to parse submission body", "form", form, "error", err)
	apiErr := ErrInvalidRequest()
	h.writeError(w, apiErr)
	return apiErr.Status
}

// ServeHealth reports liveness and, when the query asks for it, provider
// reachability.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if r.URL.Query().Get("provider") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.server.sender.HealthCheck(ctx); err != nil {
			h.logger.Warn("Provider health check failed",
				"provider", h.server.sender.Name(), "error", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	h.writeJSON(w, code, map[string]string{
		"status":   status,
		"provider": h.server.sender.Name(),
	})
}

// ServeLogs returns the ring buffer's recent entries. Requires a configured
// bcrypt token hash and is never served in production.
func (h *Handler) ServeLogs(w http.ResponseWriter, r *http.Request) {
	if h.server.config.Mode == ModeProduction || h.server.config.Ops.LogTokenHash == "" || h.ring == nil {
		http.NotFound(w, r)
		return
	}

	if !h.authorizeOps(r) {
		clientIP := security.GetClientIP(r,
			h.server.config.RateLimit.TrustProxy,
			h.server.config.RateLimit.TrustedProxyCount)
		h.logger.Warn("Log inspection access denied", "client_ip", clientIP)
		if h.server.auditor != nil {
			h.server.auditor.LogEvent(security.Event{
				Type:      security.EventOpsAccessDenied,
				IPAddress: clientIP,
			})
		}
		h.writeError(w, NewAPIError(ErrorCodeInvalidRequest, "Unauthorized", http.StatusUnauthorized))
		return
	}

	entries := h.ring.Entries()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// authorizeOps compares the bearer token against the configured bcrypt hash
func (h *Handler) authorizeOps(r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return false
	}
	err := bcrypt.CompareHashAndPassword(
		[]byte(h.server.config.Ops.LogTokenHash),
		[]byte(parts[1]),
	)
	return err == nil
}

// ServePreflight handles CORS preflight (OPTIONS) requests
func (h *Handler) ServePreflight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodOptions {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.setCORSHeaders(w, r)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNoContent)
}

// setCORSHeaders echoes the allowed origin back to browser clients.
// Production restricts to the single configured origin; outside production
// an empty configuration falls back to the wildcard.
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := h.resolveOrigin(origin)
	if allowed == "" {
		h.logger.Debug("CORS request from disallowed origin", "origin", origin)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Add("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+csrfTokenHeader)

	maxAge := h.server.config.CORS.MaxAge
	if maxAge == 0 {
		maxAge = defaultCORSMaxAge
	}
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
}

// resolveOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or empty when the origin is not allowed.
func (h *Handler) resolveOrigin(origin string) string {
	origins := h.server.config.CORS.AllowedOrigins

	if h.server.config.Mode == ModeProduction {
		if len(origins) == 0 {
			return ""
		}
		// Exactly one configured origin is honored in production.
		first := origins[0]
		if first != "*" && subtle.ConstantTimeCompare([]byte(first), []byte(origin)) == 1 {
			return origin
		}
		return ""
	}

	if len(origins) == 0 {
		return "*"
	}
	for _, allowed := range origins {
		if allowed == "*" || allowed == origin {
			return origin
		}
	}
	return ""
}

// setRateLimitHeaders attaches the limiter decision to the response
func (h *Handler) setRateLimitHeaders(w http.ResponseWriter, d security.Decision) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", d.ResetTime.UTC().Format(time.RFC3339))
}

func (h *Handler) writeError(w http.ResponseWriter, apiErr *APIError) {
	h.writeJSON(w, apiErr.Status, errorResponse{
		Error:   apiErr.Message,
		Code:    apiErr.Code,
		Details: apiErr.Details,
	})
}

func (h *Handler) writeErrorWithReset(w http.ResponseWriter, apiErr *APIError, resetTime time.Time) {
	h.writeJSON(w, apiErr.Status, errorResponse{
		Error:     apiErr.Message,
		Code:      apiErr.Code,
		ResetTime: resetTime.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// finishRequest emits the per-request access log line and HTTP metrics
func (h *Handler) finishRequest(r *http.Request, form string, status int, startTime time.Time, span trace.Span) {
	duration := time.Since(startTime)

	h.logger.Info("Request completed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration", duration,
		"form", form)

	instrumentation.AddHTTPAttributes(span, r.Method, r.URL.Path, status)
	if h.server.inst != nil {
		h.server.inst.Metrics().RecordHTTPRequest(
			context.Background(), r.Method, r.URL.Path, status,
			float64(duration.Milliseconds()))
	}
}

func (h *Handler) recordSubmission(ctx context.Context, form, outcome string) {
	if h.server.inst == nil {
		return
	}
	h.server.inst.Metrics().RecordSubmission(ctx, form, outcome)
}

func (h *Handler) recordRateLimitExceeded(ctx context.Context, form string) {
	if h.server.inst == nil {
		return
	}
	h.server.inst.Metrics().RecordRateLimitExceeded(ctx, form)
}

func (h *Handler) recordTokenRejected(ctx context.Context, form string, hadToken bool) {
	if h.server.inst == nil {
		return
	}
	h.server.inst.Metrics().RecordTokenValidationFailed(ctx, form, hadToken)
}

func (h *Handler) recordValidationFailed(ctx context.Context, form string, fieldCount int) {
	if h.server.inst == nil {
		return
	}
	h.server.inst.Metrics().RecordPayloadValidationFailed(ctx, form, fieldCount)
}

func spanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
