package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
)

func newTestWindow(t *testing.T, window time.Duration, max int64) (*FixedWindow, *clock.FakeClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := clock.NewFakeClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
	return NewFixedWindow(client, clk, window, max), clk
}

func TestFixedWindowAllowsUpToMax(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := w.Allow(ctx, "check:user:1")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}

	res, err := w.Allow(ctx, "check:user:1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("fourth request allowed, want denied")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v, want within the window", res.RetryAfter)
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
}

func TestFixedWindowResetsOnNewWindow(t *testing.T) {
	w, clk := newTestWindow(t, time.Minute, 1)
	ctx := context.Background()

	if res, err := w.Allow(ctx, "check:user:2"); err != nil || !res.Allowed {
		t.Fatalf("first request: allowed=%v err=%v", res != nil && res.Allowed, err)
	}
	if res, err := w.Allow(ctx, "check:user:2"); err != nil || res.Allowed {
		t.Fatalf("second request: allowed=%v err=%v, want denied", res != nil && res.Allowed, err)
	}

	clk.Advance(time.Minute)

	res, err := w.Allow(ctx, "check:user:2")
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !res.Allowed {
		t.Fatal("request in fresh window denied, want allowed")
	}
	if res.Count != 1 {
		t.Fatalf("count in fresh window = %d, want 1", res.Count)
	}
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 1)
	ctx := context.Background()

	if res, _ := w.Allow(ctx, "check:user:a"); !res.Allowed {
		t.Fatal("user a denied")
	}
	if res, _ := w.Allow(ctx, "check:user:a"); res.Allowed {
		t.Fatal("user a second request allowed, want denied")
	}
	if res, _ := w.Allow(ctx, "check:user:b"); !res.Allowed {
		t.Fatal("user b denied by user a traffic")
	}
}

func TestFixedWindowRejectsNonPositiveWindow(t *testing.T) {
	w, _ := newTestWindow(t, 0, 3)
	ctx := context.Background()

	if _, err := w.Allow(ctx, "check:user:1"); err == nil {
		t.Fatal("zero window accepted, want error")
	}

	w, _ = newTestWindow(t, time.Minute, 0)
	if _, err := w.Allow(ctx, "check:user:1"); err == nil {
		t.Fatal("zero max accepted, want error")
	}
}

func TestCheckLimiterDisabledByZeroWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{RateLimit: config.RateLimitConfig{
		Enabled:     true,
		Window:      0,
		MaxRequests: 10,
	}}
	clk := clock.NewFakeClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))

	l := NewCheckLimiter(cfg, client, clk)
	if l.Enabled() {
		t.Fatal("limiter with zero window enabled, want disabled")
	}

	res, err := l.AllowCheck(context.Background(), "1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed {
		t.Fatal("disabled limiter denied a request")
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *CheckLimiter
	res, err := l.AllowCheck(context.Background(), "1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed {
		t.Fatal("nil limiter denied a request")
	}
}
