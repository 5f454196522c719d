// Package lease guards the dialer loop with a Redis-held run lease so that
// only one process dispatches from a shared snapshot store at a time.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lease is a named, expiring ownership token.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// New builds a lease handle. Nothing is acquired until Acquire.
func New(client *redis.Client, name string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Lease{client: client, key: name, token: uuid.NewString(), ttl: ttl}
}

// Acquire takes the lease if nobody holds it. Re-acquiring a lease this
// handle already owns extends it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease acquire: %w", err)
	}
	if ok {
		return true, nil
	}
	return l.Refresh(ctx)
}

// Refresh extends the lease. It reports false once ownership was lost.
func (l *Lease) Refresh(ctx context.Context) (bool, error) {
	res, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("lease refresh: %w", err)
	}
	return res == 1, nil
}

// Release drops the lease if this handle still owns it.
func (l *Lease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int(); err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}
