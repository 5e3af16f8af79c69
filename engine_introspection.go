package lmsauth

import (
	"context"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisConfigured bool
	RedisAvailable  bool
	RedisLatency    time.Duration
}

// Health pings the throttling backend. Without Redis it reports
// RedisConfigured=false and nothing else.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.redis == nil {
		return HealthStatus{}
	}

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	return HealthStatus{
		RedisConfigured: true,
		RedisAvailable:  err == nil,
		RedisLatency:    time.Since(start),
	}
}

// GetLoginAttempts returns the failed-login count currently held for email.
// It is zero when throttling is not configured.
func (e *Engine) GetLoginAttempts(ctx context.Context, email string) (int, error) {
	if e == nil || e.rateLimiter == nil {
		return 0, nil
	}
	email = model.NormalizeEmail(email)
	if email == "" {
		return 0, nil
	}

	n, err := e.rateLimiter.GetLoginAttempts(ctx, email)
	if err != nil {
		return 0, withCause(ErrInternal, err)
	}
	return n, nil
}
