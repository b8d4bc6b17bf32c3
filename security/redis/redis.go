// Package redis provides a Redis-backed implementation of the
// security.Limiter interface for deployments that run more than one
// formrelay instance. It keeps the same fixed-window (sliding-on-read)
// semantics as the in-memory WindowLimiter, with the timestamp log held in a
// sorted set so every instance sees one shared window per client.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agencykit/formrelay/security"
)

// windowScript prunes expired timestamps, checks the limit, and records the
// request in a single round trip so concurrent instances cannot race between
// the read and the write.
//
// Returns {allowed, remaining, reset_ms}.
var windowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)

local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, 0, tonumber(oldest[2]) + window_ms}
end

redis.call('ZADD', key, now_ms, member)
redis.call('PEXPIRE', key, window_ms)
return {1, max - count - 1, now_ms + window_ms}
`)

// Limiter is a shared fixed-window rate limiter backed by Redis.
type Limiter struct {
	client       *redis.Client
	maxPerWindow int
	window       time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

var _ security.Limiter = (*Limiter)(nil)

// Option configures a Limiter
type Option func(*Limiter)

// WithLogger sets the logger used for blocked-client events
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source (for testing)
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLimiter creates a Redis-backed window limiter. The connection is
// verified with a short ping so a misconfigured address fails at startup
// rather than on the first form submission.
func NewLimiter(client *redis.Client, maxPerWindow int, window time.Duration, opts ...Option) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if maxPerWindow <= 0 {
		return nil, fmt.Errorf("maxPerWindow must be positive, got %d", maxPerWindow)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %v", window)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	l := &Limiter{
		client:       client,
		maxPerWindow: maxPerWindow,
		window:       window,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check records a request attempt from clientID and returns the decision.
// A Redis failure is returned to the caller; the handler decides whether to
// fail open or closed.
func (l *Limiter) Check(ctx context.Context, clientID string) (security.Decision, error) {
	now := l.now()
	nowMilli := now.UnixMilli()
	// Member must be unique per request; two requests can share a millisecond
	member := fmt.Sprintf("%d-%s", now.UnixNano(), security.GenerateRequestID())

	result, err := windowScript.Run(ctx, l.client,
		[]string{"formrelay:ratelimit:" + clientID},
		l.maxPerWindow,          // ARGV[1]
		l.window.Milliseconds(), // ARGV[2]
		nowMilli,                // ARGV[3]
		member,                  // ARGV[4]
	).Result()
	if err != nil {
		return security.Decision{}, fmt.Errorf("rate limit script: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return security.Decision{}, errors.New("invalid lua response format")
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetMilli, _ := values[2].(int64)

	if allowed != 1 {
		l.logger.Debug("Rate limit exceeded (redis)",
			"client_id", clientID,
			"reset_time", time.UnixMilli(resetMilli).UTC().Format(time.RFC3339))
	}

	return security.Decision{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetTime: time.UnixMilli(resetMilli),
	}, nil
}
