package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out short-lived per-key leases backed by redis SET NX, so
// worker instances can claim a (user, feature) stream without stepping on
// each other. A lease that outlives its TTL simply expires; the release
// script checks ownership so a stale holder cannot drop a lease that has
// since been re-acquired.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(leaseReleaseScript),
	}
}

// Lease is a held lock on one key. Release only deletes the key while
// this lease still owns it.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire attempts to take the lease without blocking. ok reports whether
// this caller now holds the key; when false another holder has it and the
// returned lease is nil.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("lock client not configured")
	}
	if key == "" {
		return nil, false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lease{locker: l, key: key, token: token}, true, nil
}

func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil {
		return nil
	}
	return le.locker.script.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
}
