package security

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxRequestsPerWindow is the default number of submissions
	// accepted per client per window
	DefaultMaxRequestsPerWindow = 5

	// DefaultWindow is the default rate-limit window
	DefaultWindow = time.Minute

	// DefaultCleanupInterval is how often the idle-entry sweep runs
	DefaultCleanupInterval = 15 * time.Minute

	// DefaultMaxEntries is the maximum number of client identifiers to track
	DefaultMaxEntries = 10000
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool      // whether the request may proceed
	Remaining int       // requests left in the current window
	ResetTime time.Time // when the client's window resets
}

// Limiter is the rate-limit check used by the form endpoints. The in-memory
// WindowLimiter is the default implementation; security/redis provides a
// shared backend for multi-instance deployments.
type Limiter interface {
	Check(ctx context.Context, clientID string) (Decision, error)
}

// clientEntry tracks submission timestamps for one client identifier
type clientEntry struct {
	clientID   string
	timestamps []time.Time // submissions inside the current window
	lastAccess time.Time
}

// WindowLimiter provides fixed-window (sliding-on-read) rate limiting keyed
// by client identifier, with an LRU cap and a periodic idle sweep to prevent
// unbounded memory growth.
//
// This intentionally undercounts slightly at window boundaries; it is abuse
// mitigation, not precise quota enforcement.
type WindowLimiter struct {
	entries         map[string]*list.Element // clientID -> list element
	lruList         *list.List               // LRU list of *clientEntry
	mu              sync.RWMutex
	maxPerWindow    int
	window          time.Duration
	maxEntries      int
	logger          *slog.Logger
	now             func() time.Time
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics
	totalBlocked   int64
	totalAllowed   int64
	totalEvictions int64
	totalCleanups  int64
}

var _ Limiter = (*WindowLimiter)(nil)

// WindowLimiterOption configures a WindowLimiter
type WindowLimiterOption func(*WindowLimiter)

// WithLimiterClock overrides the time source (for testing)
func WithLimiterClock(now func() time.Time) WindowLimiterOption {
	return func(l *WindowLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithCleanupInterval overrides how often the idle sweep runs
func WithCleanupInterval(d time.Duration) WindowLimiterOption {
	return func(l *WindowLimiter) {
		if d > 0 {
			l.cleanupInterval = d
		}
	}
}

// NewWindowLimiter creates a fixed-window rate limiter. Invalid parameters
// fall back to defaults with a warning rather than failing, so a
// misconfigured limit never disables abuse protection entirely.
func NewWindowLimiter(maxPerWindow int, window time.Duration, maxEntries int, logger *slog.Logger, opts ...WindowLimiterOption) *WindowLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPerWindow <= 0 {
		maxPerWindow = DefaultMaxRequestsPerWindow
		logger.Warn("Invalid maxPerWindow, using default", "maxPerWindow", maxPerWindow)
	}
	if window <= 0 {
		window = DefaultWindow
		logger.Warn("Invalid window, using default", "window", window)
	}
	if maxEntries < 0 {
		maxEntries = DefaultMaxEntries
		logger.Warn("Invalid maxEntries, using default", "maxEntries", maxEntries)
	}

	l := &WindowLimiter{
		entries:         make(map[string]*list.Element),
		lruList:         list.New(),
		maxPerWindow:    maxPerWindow,
		window:          window,
		maxEntries:      maxEntries,
		logger:          logger,
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	// Start background cleanup goroutine
	go l.cleanupLoop()

	return l
}

// Check records a request attempt from clientID and returns the decision.
// When the limit is exceeded, ResetTime is when the oldest surviving request
// leaves the window, i.e. the earliest moment a retry can succeed.
func (l *WindowLimiter) Check(_ context.Context, clientID string) (Decision, error) {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	elem, exists := l.entries[clientID]
	if !exists {
		// Lazily create on first request, evicting the LRU entry at capacity
		if l.maxEntries > 0 && len(l.entries) >= l.maxEntries {
			l.evictLRU()
		}
		entry := &clientEntry{
			clientID:   clientID,
			timestamps: []time.Time{now},
			lastAccess: now,
		}
		l.entries[clientID] = l.lruList.PushFront(entry)
		l.totalAllowed++
		return Decision{
			Allowed:   true,
			Remaining: l.maxPerWindow - 1,
			ResetTime: now.Add(l.window),
		}, nil
	}

	l.lruList.MoveToFront(elem)
	entry := elem.Value.(*clientEntry)
	entry.lastAccess = now

	// Discard timestamps outside the window (in-place filtering)
	n := 0
	for _, t := range entry.timestamps {
		if t.After(windowStart) {
			entry.timestamps[n] = t
			n++
		}
	}
	entry.timestamps = entry.timestamps[:n]

	if len(entry.timestamps) >= l.maxPerWindow {
		l.totalBlocked++
		l.logger.Warn("Rate limit exceeded",
			"client_id", clientID,
			"requests_in_window", len(entry.timestamps),
			"max_per_window", l.maxPerWindow,
			"window", l.window,
			"total_blocked", l.totalBlocked)
		return Decision{
			Allowed:   false,
			Remaining: 0,
			ResetTime: entry.timestamps[0].Add(l.window),
		}, nil
	}

	entry.timestamps = append(entry.timestamps, now)
	l.totalAllowed++
	return Decision{
		Allowed:   true,
		Remaining: l.maxPerWindow - len(entry.timestamps),
		ResetTime: now.Add(l.window),
	}, nil
}

// evictLRU removes the least recently used entry from the cache.
// Must be called with mutex locked.
func (l *WindowLimiter) evictLRU() {
	elem := l.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*clientEntry)
	delete(l.entries, entry.clientID)
	l.lruList.Remove(elem)
	l.totalEvictions++

	l.logger.Debug("Rate limiter LRU eviction",
		"client_id", entry.clientID,
		"total_evictions", l.totalEvictions,
		"current_entries", len(l.entries))
}

// cleanupLoop periodically removes inactive entries to prevent memory leaks
func (l *WindowLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// Cleanup removes entries that haven't been accessed in 2x the window
// duration. Safe to call directly from tests.
func (l *WindowLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	maxIdleTime := l.window * 2
	removed := 0

	var next *list.Element
	for elem := l.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*clientEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(l.entries, entry.clientID)
			l.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		l.totalCleanups++
		l.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(l.entries),
			"total_cleanups", l.totalCleanups)
	}
}

// Stop gracefully stops the cleanup goroutine.
// Safe to call multiple times concurrently.
func (l *WindowLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
		l.logger.Debug("Rate limiter stopped")
	})
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int     // Current number of tracked client identifiers
	MaxEntries     int     // Maximum allowed entries (0 = unlimited)
	TotalBlocked   int64   // Total requests blocked
	TotalAllowed   int64   // Total requests allowed
	TotalEvictions int64   // Total number of LRU evictions
	TotalCleanups  int64   // Total number of cleanup operations
	MaxPerWindow   int     // Maximum requests per window
	Window         string  // Time window duration
	MemoryPressure float64 // Percentage of max capacity used (0-100)
}

// GetStats returns current rate limiter statistics for monitoring and alerting
func (l *WindowLimiter) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		CurrentEntries: len(l.entries),
		MaxEntries:     l.maxEntries,
		TotalBlocked:   l.totalBlocked,
		TotalAllowed:   l.totalAllowed,
		TotalEvictions: l.totalEvictions,
		TotalCleanups:  l.totalCleanups,
		MaxPerWindow:   l.maxPerWindow,
		Window:         l.window.String(),
	}

	if l.maxEntries > 0 {
		stats.MemoryPressure = float64(stats.CurrentEntries) / float64(stats.MaxEntries) * 100.0
	}

	return stats
}
