package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hit adds one to the fixed-window counter at key and returns the new count.
// The window starts with the first hit; creating the key and counting happen in
// one MULTI so a counter never outlives its window.
func Hit(ctx context.Context, client redis.Cmdable, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, key, 0, window)
		incr = p.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}

// Peek returns the counter at key, zero when absent.
func Peek(ctx context.Context, client redis.Cmdable, key string) (int64, error) {
	n, err := client.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	case n < 0:
		return 0, nil
	}
	return n, nil
}
