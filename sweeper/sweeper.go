// Package sweeper periodically removes expired tokens from the token store.
package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Cleaner is satisfied by *lmsauth.Engine.
type Cleaner interface {
	CleanExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// Grace keeps expired records around for this long, so a revoked refresh
	// token can still be recognized as reused shortly after it expires.
	Grace time.Duration
	// Timeout bounds a single sweep. Zero means Interval.
	Timeout time.Duration
}

type Sweeper struct {
	cleaner Cleaner
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func New(cleaner Cleaner, cfg Config, logger *zap.Logger) (*Sweeper, error) {
	if cleaner == nil {
		return nil, errors.New("sweeper: nil cleaner")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("sweeper: interval must be positive")
	}
	if cfg.Grace < 0 {
		return nil, errors.New("sweeper: grace must not be negative")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cleaner: cleaner,
		cfg:     cfg,
		logger:  logger.Named("sweeper"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run sweeps once immediately and then every Interval until ctx is done.
// Failed sweeps are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		_, _ = s.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	before := s.now().Add(-s.cfg.Grace)
	n, err := s.cleaner.CleanExpiredTokens(ctx, before)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("sweep failed", zap.Error(err))
		}
		return n, err
	}
	if n > 0 {
		s.logger.Info("expired tokens removed", zap.Int64("count", n), zap.Time("before", before))
	}
	return n, nil
}
