package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const janitorBatch = 100

// Janitor periodically sweeps expired staged uploads and retries pending
// storage cleanups.
type Janitor struct {
	staging  *Staging
	cleanups *Cleanups
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor creates a Janitor. A non-positive interval defaults to five minutes.
func NewJanitor(staging *Staging, cleanups *Cleanups, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{staging: staging, cleanups: cleanups, interval: interval, logger: logger}
}

// Start runs the janitor in a goroutine until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			// wait first so the sweep does not race boot
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) {
	if j.staging != nil {
		n, err := j.staging.SweepExpired(ctx, janitorBatch)
		if err != nil {
			j.logger.Warn("sweep expired uploads failed", zap.Error(err))
		} else if n > 0 {
			j.logger.Info("expired uploads removed", zap.Int("count", n))
		}
	}
	if j.cleanups != nil {
		n, err := j.cleanups.RetryPending(ctx, janitorBatch)
		if err != nil {
			j.logger.Warn("retry pending cleanups failed", zap.Error(err))
		} else if n > 0 {
			j.logger.Info("pending cleanups completed", zap.Int("count", n))
		}
	}
}
