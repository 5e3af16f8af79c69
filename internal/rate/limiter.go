package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter throttles failed logins per email (and per IP when enabled) and
// refresh exchanges per user.
type Limiter struct {
	redis redis.UniversalClient
	cfg   Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: client, cfg: cfg}
}

// loginKeys lists the counters a login attempt is charged against.
func (l *Limiter) loginKeys(email, ip string) []string {
	keys := []string{loginEmailKey(email)}
	if l.cfg.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	return keys
}

// CheckLogin fails with ErrRateLimited once any login counter has reached
// MaxLoginAttempts. It does not count.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	for _, key := range l.loginKeys(email, ip) {
		n, err := Peek(ctx, l.redis, key)
		if err != nil {
			return err
		}
		if n >= int64(l.cfg.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin charges one failed attempt. Unknown emails are charged like
// wrong passwords.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	limited := false
	for _, key := range l.loginKeys(email, ip) {
		n, err := Hit(ctx, l.redis, key, l.cfg.LoginCooldownDuration)
		if err != nil {
			return err
		}
		limited = limited || n > int64(l.cfg.MaxLoginAttempts)
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	if err := l.redis.Del(ctx, l.loginKeys(email, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh charges one exchange to userID.
func (l *Limiter) CheckRefresh(ctx context.Context, userID string) error {
	if !l.cfg.EnableRefreshThrottle {
		return nil
	}
	n, err := Hit(ctx, l.redis, refreshKey(userID), l.cfg.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if n > int64(l.cfg.MaxRefreshAttempts) {
		return ErrRateLimited
	}
	return nil
}

// GetLoginAttempts reads the per-email counter. Unknown emails read as zero.
func (l *Limiter) GetLoginAttempts(ctx context.Context, email string) (int, error) {
	n, err := Peek(ctx, l.redis, loginEmailKey(email))
	return int(n), err
}
