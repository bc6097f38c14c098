package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tradeboard/internal/clock"
)

const windowIncrScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

type Result struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// FixedWindow counts requests per key within aligned time windows. The
// window bucket is derived from the injected clock, so tests can step
// time without sleeping.
type FixedWindow struct {
	client *redis.Client
	script *redis.Script
	clock  clock.Clock
	window time.Duration
	max    int64
}

func NewFixedWindow(client *redis.Client, clk clock.Clock, window time.Duration, max int64) *FixedWindow {
	if client == nil {
		return nil
	}
	return &FixedWindow{
		client: client,
		script: redis.NewScript(windowIncrScript),
		clock:  clk,
		window: window,
		max:    max,
	}
}

func (w *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if w == nil || w.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if w.window <= 0 || w.max <= 0 {
		return nil, errors.New("rate limiter window and max must be positive")
	}

	now := w.clock.Now()
	windowMillis := w.window.Milliseconds()
	bucket := now.UnixMilli() / windowMillis
	bucketKey := key + ":" + strconv.FormatInt(bucket, 10)

	count, err := w.script.Run(ctx, w.client, []string{bucketKey}, windowMillis).Int64()
	if err != nil {
		return nil, err
	}

	remaining := w.max - count
	if remaining < 0 {
		remaining = 0
	}

	res := &Result{
		Allowed:   count <= w.max,
		Count:     count,
		Remaining: remaining,
	}
	if !res.Allowed {
		windowEnd := time.UnixMilli((bucket + 1) * windowMillis)
		res.RetryAfter = windowEnd.Sub(now)
	}
	return res, nil
}
