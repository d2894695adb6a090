// Package cleanup purges refresh token records that are past their expiry.
package cleanup

import (
	"context"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/config"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/metrics"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
)

type Runner struct {
	records  models.RefreshTokenRepository
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	m        *metrics.Metrics
	l        logger.Logger
}

func New(records models.RefreshTokenRepository, cfg config.CleanupConfig, m *metrics.Metrics, now func() time.Time, l logger.Logger) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{
		records:  records,
		interval: cfg.Interval.Std(),
		grace:    cfg.Grace.Std(),
		now:      now,
		m:        m,
		l:        l,
	}
}

// Tick deletes every record whose expiry is at or before now minus the grace period.
func (r *Runner) Tick(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() { r.m.CleanupDuration.Observe(time.Since(start).Seconds()) }()

	cutoff := r.now().Add(-r.grace)
	deleted, err := r.records.DeleteExpired(ctx, cutoff)
	if err != nil {
		r.m.CleanupErrors.Inc()
		r.l.Warn("Cleanup run failed", logger.Error(err))
		return 0, err
	}

	r.m.CleanupDeleted.Add(float64(deleted))
	if deleted > 0 {
		r.l.Info("Expired refresh tokens removed",
			logger.Int64("deleted", deleted),
			logger.Time("cutoff", cutoff))
	}
	return deleted, nil
}

// Run cleans up once immediately and then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	_, _ = r.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = r.Tick(ctx)
		}
	}
}
