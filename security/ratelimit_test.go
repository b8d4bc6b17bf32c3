package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/agencykit/formrelay/internal/testutil"
)

const testClientID = "192.168.1.1"

func TestNewWindowLimiter_Defaults(t *testing.T) {
	logger := slog.Default()

	tests := []struct {
		name         string
		maxPerWindow int
		window       time.Duration
		maxEntries   int
		wantMax      int
		wantWindow   time.Duration
		wantEntries  int
	}{
		{
			name:         "valid config",
			maxPerWindow: 5,
			window:       30 * time.Minute,
			maxEntries:   1000,
			wantMax:      5,
			wantWindow:   30 * time.Minute,
			wantEntries:  1000,
		},
		{
			name:         "invalid maxPerWindow uses default",
			maxPerWindow: 0,
			window:       time.Hour,
			maxEntries:   1000,
			wantMax:      DefaultMaxRequestsPerWindow,
			wantWindow:   time.Hour,
			wantEntries:  1000,
		},
		{
			name:         "invalid window uses default",
			maxPerWindow: 10,
			window:       0,
			maxEntries:   1000,
			wantMax:      10,
			wantWindow:   DefaultWindow,
			wantEntries:  1000,
		},
		{
			name:         "negative maxEntries uses default",
			maxPerWindow: 10,
			window:       time.Hour,
			maxEntries:   -1,
			wantMax:      10,
			wantWindow:   time.Hour,
			wantEntries:  DefaultMaxEntries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewWindowLimiter(tt.maxPerWindow, tt.window, tt.maxEntries, logger)
			defer l.Stop()

			if l.maxPerWindow != tt.wantMax {
				t.Errorf("maxPerWindow: got %d, want %d", l.maxPerWindow, tt.wantMax)
			}
			if l.window != tt.wantWindow {
				t.Errorf("window: got %v, want %v", l.window, tt.wantWindow)
			}
			if l.maxEntries != tt.wantEntries {
				t.Errorf("maxEntries: got %d, want %d", l.maxEntries, tt.wantEntries)
			}
		})
	}
}

func TestWindowLimiter_Check(t *testing.T) {
	l := NewWindowLimiter(3, time.Hour, 10, slog.Default())
	defer l.Stop()

	ctx := context.Background()

	// First 3 requests should be allowed with decreasing remaining
	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, testClientID)
		testutil.AssertNoError(t, err)
		if !d.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if d.Remaining != 3-(i+1) {
			t.Errorf("request %d: remaining = %d, want %d", i+1, d.Remaining, 3-(i+1))
		}
	}

	// 4th request should be blocked
	d, err := l.Check(ctx, testClientID)
	testutil.AssertNoError(t, err)
	if d.Allowed {
		t.Error("4th request should be blocked")
	}
	if d.Remaining != 0 {
		t.Errorf("blocked decision remaining = %d, want 0", d.Remaining)
	}
	if d.ResetTime.IsZero() {
		t.Error("blocked decision should carry a reset time")
	}

	// Different client is unaffected
	d, err = l.Check(ctx, "10.0.0.2")
	testutil.AssertNoError(t, err)
	if !d.Allowed {
		t.Error("different client should be allowed")
	}
}

func TestWindowLimiter_WindowExpiry(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l := NewWindowLimiter(2, time.Minute, 10, slog.Default(), WithLimiterClock(clock.Now))
	defer l.Stop()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, _ := l.Check(ctx, testClientID)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	d, _ := l.Check(ctx, testClientID)
	if d.Allowed {
		t.Fatal("3rd request inside window should be blocked")
	}
	// Blocked reset time is when the oldest surviving request leaves the window
	wantReset := clock.Now().Add(time.Minute)
	if !d.ResetTime.Equal(wantReset) {
		t.Errorf("ResetTime = %v, want %v", d.ResetTime, wantReset)
	}

	// After the window fully elapses, requests succeed again
	clock.Advance(time.Minute + time.Second)
	d, _ = l.Check(ctx, testClientID)
	if !d.Allowed {
		t.Error("request after window elapsed should be allowed")
	}
	if d.Remaining != 1 {
		t.Errorf("remaining after window reset = %d, want 1", d.Remaining)
	}
}

func TestWindowLimiter_LRUEviction(t *testing.T) {
	l := NewWindowLimiter(5, time.Hour, 3, slog.Default())
	defer l.Stop()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.Check(ctx, fmt.Sprintf("client-%d", i))
	}

	stats := l.GetStats()
	if stats.CurrentEntries != 3 {
		t.Errorf("CurrentEntries = %d, want 3 (LRU cap)", stats.CurrentEntries)
	}
	if stats.TotalEvictions != 2 {
		t.Errorf("TotalEvictions = %d, want 2", stats.TotalEvictions)
	}
}

func TestWindowLimiter_Cleanup(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l := NewWindowLimiter(5, time.Minute, 100, slog.Default(), WithLimiterClock(clock.Now))
	defer l.Stop()

	ctx := context.Background()
	_, _ = l.Check(ctx, "idle-client")
	_, _ = l.Check(ctx, "active-client")

	// Idle for more than 2x the window
	clock.Advance(3 * time.Minute)
	_, _ = l.Check(ctx, "active-client")

	l.Cleanup()

	stats := l.GetStats()
	if stats.CurrentEntries != 1 {
		t.Errorf("CurrentEntries after cleanup = %d, want 1", stats.CurrentEntries)
	}
}

func TestWindowLimiter_ConcurrentAccess(t *testing.T) {
	l := NewWindowLimiter(1000, time.Hour, 100, slog.Default())
	defer l.Stop()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = l.Check(ctx, fmt.Sprintf("client-%d", n%3))
			}
		}(i)
	}
	wg.Wait()

	stats := l.GetStats()
	if stats.TotalAllowed+stats.TotalBlocked != 500 {
		t.Errorf("total decisions = %d, want 500", stats.TotalAllowed+stats.TotalBlocked)
	}
}

func TestWindowLimiter_StopIdempotent(t *testing.T) {
	l := NewWindowLimiter(5, time.Minute, 10, slog.Default())
	l.Stop()
	l.Stop() // must not panic
}
