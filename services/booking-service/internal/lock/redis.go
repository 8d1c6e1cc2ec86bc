// Package lock provides the optional external mutex keyed by
// (tenant, staff, date) that brackets a booking attempt.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// ErrBusy means another request holds the lock past the wait budget.
var ErrBusy = errors.New("lock: busy")

type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ScheduleKey names the lock guarding one staff member's day. The day is
// the calendar date of start in loc, the location's timezone.
func ScheduleKey(tenant model.TenantID, staffID string, start time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("booking:%s:%s:%s", tenant, staffID, start.In(loc).Format("2006-01-02"))
}

// Noop is used when Redis is not configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type RedisLocker struct {
	client client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

type RedisConfig struct {
	// TTL caps how long a crashed holder can block the key.
	TTL time.Duration
	// Wait is how long Acquire polls before returning ErrBusy.
	Wait time.Duration
}

func NewRedisLocker(c redis.Cmdable, cfg RedisConfig) *RedisLocker {
	return newRedisLocker(c, cfg)
}

func newRedisLocker(c client, cfg RedisConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Wait < 0 {
		cfg.Wait = 0
	}
	return &RedisLocker{client: c, ttl: cfg.TTL, wait: cfg.Wait, poll: 25 * time.Millisecond}
}

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	const op = "lock.RedisLocker.Acquire"

	lockKey := "lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
