package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements SET NX and the compare-and-delete script.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[keys[0]] == args[0].(string) {
		delete(f.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLockerExclusion(t *testing.T) {
	fr := &fakeRedis{data: map[string]string{}}
	l := newRedisLocker(fr, RedisConfig{Wait: 0})
	ctx := context.Background()
	key := ScheduleKey("salon-1", "st-1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), nil)
	if key != "booking:salon-1:st-1:2025-03-10" {
		t.Fatalf("unexpected key %q", key)
	}

	release, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, key); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	release()
	release2, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	fr := &fakeRedis{data: map[string]string{}}
	l := newRedisLocker(fr, RedisConfig{Wait: time.Second})
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()
	release2, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("expected second Acquire to succeed after release, got %v", err)
	}
	release2()
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "k")
	if err != nil || release == nil {
		t.Fatalf("Noop.Acquire: %v", err)
	}
	release()
}

func TestScheduleKeyUsesLocalDate(t *testing.T) {
	west := time.FixedZone("UTC-8", -8*3600)
	// 20:00 local on the 10th is 04:00 UTC on the 11th.
	start := time.Date(2025, 3, 10, 20, 0, 0, 0, west)
	if got := ScheduleKey("salon-1", "st-1", start, west); got != "booking:salon-1:st-1:2025-03-10" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ScheduleKey("salon-1", "st-1", start, time.UTC); got != "booking:salon-1:st-1:2025-03-11" {
		t.Fatalf("unexpected UTC key %q", got)
	}
}
