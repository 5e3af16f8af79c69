package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/lmsauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("request rate limited")
	ErrRedisUnavailable = errors.New("limiter redis unavailable")
)

// Config sets a fixed window budget keyed by identifier and, optionally, by
// client IP.
type Config struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	MaxAttempts              int
	Window                   time.Duration
}

// RequestLimiter counts requests of one kind in fixed windows.
type RequestLimiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// NewAccountCreationLimiter throttles registrations.
func NewAccountCreationLimiter(redisClient redis.UniversalClient, cfg Config) *RequestLimiter {
	return newRequestLimiter(redisClient, cfg, "lms:acl:")
}

// NewPasswordResetLimiter throttles password reset requests.
func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg Config) *RequestLimiter {
	return newRequestLimiter(redisClient, cfg, "lms:prl:")
}

// NewEmailVerificationLimiter throttles verification resend requests.
func NewEmailVerificationLimiter(redisClient redis.UniversalClient, cfg Config) *RequestLimiter {
	return newRequestLimiter(redisClient, cfg, "lms:evl:")
}

func newRequestLimiter(redisClient redis.UniversalClient, cfg Config, prefix string) *RequestLimiter {
	if redisClient == nil || cfg.MaxAttempts <= 0 || cfg.Window <= 0 {
		return nil
	}
	return &RequestLimiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

// Enforce counts one request and returns ErrRateLimited once the identifier or
// the IP has spent its window budget. A nil limiter allows everything.
func (l *RequestLimiter) Enforce(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}

	if l.config.EnableIdentifierThrottle && identifier != "" {
		if err := l.enforceKey(ctx, l.prefix+"id:"+hashIdentifier(identifier)); err != nil {
			return err
		}
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceKey(ctx, l.prefix+"ip:"+ip); err != nil {
			return err
		}
	}

	return nil
}

func (l *RequestLimiter) enforceKey(ctx context.Context, key string) error {
	count, err := rate.Hit(ctx, l.redis, key, l.config.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}
