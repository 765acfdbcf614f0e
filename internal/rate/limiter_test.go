package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test", cfg), mr
}

func TestSignInLockoutAfterFailures(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxSignInFailures: 3, SignInCooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckSignIn(ctx, "Parent@Example.com"); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
		if err := l.RecordSignInFailure(ctx, "parent@example.com "); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if err := l.CheckSignIn(ctx, "parent@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if n, _ := l.SignInFailures(ctx, "parent@example.com"); n != 3 {
		t.Fatalf("expected 3 failures, got %d", n)
	}
	if ttl := mr.TTL("test:throttle:signin:parent@example.com"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected window ttl %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckSignIn(ctx, "parent@example.com"); err != nil {
		t.Fatalf("expected cooldown to end, got %v", err)
	}
}

func TestResetSignInClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxSignInFailures: 1, SignInCooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordSignInFailure(ctx, "a@example.com")
	if err := l.CheckSignIn(ctx, "a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if err := l.ResetSignIn(ctx, "a@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, err := l.SignInFailures(ctx, "a@example.com"); err != nil || n != 0 {
		t.Fatalf("expected cleared counter, got %d %v", n, err)
	}
}

func TestAllowResetBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxResetRequests: 2, ResetWindow: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.AllowReset(ctx, "b@example.com"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := l.AllowReset(ctx, "b@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if err := l.AllowReset(ctx, "c@example.com"); err != nil {
		t.Fatalf("other email should not be limited: %v", err)
	}
}

func TestZeroMaximumDisablesChecks(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := l.RecordSignInFailure(ctx, "d@example.com"); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := l.CheckSignIn(ctx, "d@example.com"); err != nil {
			t.Fatalf("check: %v", err)
		}
		if err := l.AllowReset(ctx, "d@example.com"); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
}

func TestRedisOutageSurfaces(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxSignInFailures: 1, MaxResetRequests: 1})
	mr.Close()
	if err := l.CheckSignIn(context.Background(), "e@example.com"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected redis unavailable, got %v", err)
	}
}
