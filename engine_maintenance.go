package lmsauth

import (
	"context"
	"time"
)

// CleanExpiredTokens deletes stored tokens that expired before the given time
// and returns how many were removed.
func (e *Engine) CleanExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	n, err := e.tokens.CleanExpired(ctx, before)
	if err != nil {
		e.warn("expired token cleanup failed", "error", err)
		return n, withCause(ErrInternal, err)
	}
	if n > 0 {
		e.metrics.Add(MetricExpiredTokensCleaned, uint64(n))
	}
	return n, nil
}
