package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds throttle tuning parameters. A zero maximum disables the
// corresponding check.
type Config struct {
	MaxSignInFailures int
	SignInCooldown    time.Duration
	MaxResetRequests  int
	ResetWindow       time.Duration
}

// Limiter throttles sign-in and password-reset attempts per email using
// Redis counters, so the limits hold across separate CLI invocations.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "sessionctl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// CheckSignIn fails with ErrRateLimited while email is cooling down after
// too many rejected sign-ins.
func (l *Limiter) CheckSignIn(ctx context.Context, email string) error {
	if l.config.MaxSignInFailures <= 0 {
		return nil
	}
	return l.checkCounter(ctx, l.signInKey(email), l.config.MaxSignInFailures)
}

// RecordSignInFailure counts one rejected sign-in. The window starts at the
// first failure.
func (l *Limiter) RecordSignInFailure(ctx context.Context, email string) error {
	if l.config.MaxSignInFailures <= 0 {
		return nil
	}
	_, err := l.incrementWithTTL(ctx, l.signInKey(email), l.config.SignInCooldown)
	return err
}

// ResetSignIn clears the failure counter after a successful sign-in.
func (l *Limiter) ResetSignIn(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.signInKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowReset counts a password-reset request and fails with ErrRateLimited
// once the window's budget is spent.
func (l *Limiter) AllowReset(ctx context.Context, email string) error {
	if l.config.MaxResetRequests <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.resetKey(email), l.config.ResetWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResetRequests) {
		return ErrRateLimited
	}
	return nil
}

// SignInFailures returns the current failure counter for email.
func (l *Limiter) SignInFailures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.signInKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) signInKey(email string) string {
	return l.prefix + ":throttle:signin:" + normalize(email)
}

func (l *Limiter) resetKey(email string) string {
	return l.prefix + ":throttle:reset:" + normalize(email)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
