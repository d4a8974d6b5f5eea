package authgate

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the Sweeper reclaims expired refresh tokens.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically deletes expired refresh records. A failed run is logged
// and the next tick tries again.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper returns a Sweeper using the engine's configured interval.
func (e *Engine) NewSweeper() *Sweeper {
	interval := e.config.Refresh.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		engine:   e,
		interval: interval,
		logger:   e.logger,
	}
}

func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Run blocks, sweeping once per interval, until ctx is cancelled. The first
// sweep happens one interval after Run starts.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of records removed.
// Errors are logged, never returned.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	start := time.Now()
	n, err := s.engine.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return n
		}
		s.logger.ErrorContext(ctx, "authgate: refresh token sweep failed", slog.Any("err", err))
		return n
	}
	s.logger.DebugContext(ctx, "authgate: refresh token sweep",
		slog.Int64("removed", n),
		slog.Duration("took", time.Since(start)),
	)
	return n
}
