// Package lease keeps a single writing instance per user, and mirrors the
// running-timer projection into redis for other processes to read.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld means another instance owns the lease.
var ErrHeld = errors.New("timer lease held by another instance")

// DefaultTTL is used when no ttl is configured.
const DefaultTTL = 30 * time.Second

// Lease is a renewable, exclusive claim.
type Lease interface {
	Acquire(ctx context.Context) error
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// Noop always succeeds. Used when no redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context) error { return nil }
func (Noop) Renew(context.Context) error   { return nil }
func (Noop) Release(context.Context) error { return nil }

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is a SetNX lock on issuetimer:lease:<user> holding a random token.
type RedisLease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRedisLease creates an unacquired lease for userID.
func NewRedisLease(rdb *redis.Client, userID string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLease{
		rdb:   rdb,
		key:   "issuetimer:lease:" + userID,
		token: uuid.New().String(),
		ttl:   ttl,
	}
}

func (l *RedisLease) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring lease: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

func (l *RedisLease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renewing lease: %w", err)
	}
	if n == 0 {
		return ErrHeld
	}
	return nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

// KeepAlive renews l every interval until ctx ends. onLost is called once
// if the lease is taken over; transient errors are logged and retried.
func KeepAlive(ctx context.Context, l Lease, interval time.Duration, onLost func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Renew(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrHeld):
				if onLost != nil {
					onLost(err)
				}
				return
			default:
				log.Printf("lease: %v", err)
			}
		}
	}
}
