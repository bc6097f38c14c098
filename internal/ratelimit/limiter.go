package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
)

const (
	keyCheckUser   = "entitlement:check:user:"
	keyTrackIngest = "usage:track:user:"
)

// CheckLimiter bounds how often a single user can hit the entitlement
// checks, and smooths usage tracking writes with a token bucket. A nil
// limiter allows everything.
type CheckLimiter struct {
	enabled bool

	window *FixedWindow
	bucket *TokenBucket

	ingestRate  float64
	ingestBurst int
}

func NewCheckLimiter(cfg config.Config, client *redis.Client, clk clock.Clock) *CheckLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil
	}
	// A window that cannot bucket requests disables the limiter rather
	// than erroring on every gate call.
	if limitCfg.Window <= 0 || limitCfg.MaxRequests <= 0 {
		return nil
	}

	return &CheckLimiter{
		enabled:     true,
		window:      NewFixedWindow(client, clk, limitCfg.Window, limitCfg.MaxRequests),
		bucket:      NewTokenBucket(client),
		ingestRate:  limitCfg.IngestRate,
		ingestBurst: limitCfg.IngestBurst,
	}
}

func (l *CheckLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CheckLimiter) AllowCheck(ctx context.Context, userID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.window.Allow(ctx, keyCheckUser+strings.TrimSpace(userID))
}

func (l *CheckLimiter) AllowTrack(ctx context.Context, userID string) (bool, time.Duration, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	return l.bucket.Allow(ctx, keyTrackIngest+strings.TrimSpace(userID), l.ingestRate, l.ingestBurst)
}
