package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trackly/internal/config"
	"trackly/internal/events"
	"trackly/internal/metrics"
)

const (
	retentionBatchSize  = 1000
	retentionBatchPause = 100 * time.Millisecond
)

// RetentionJob deletes events older than the configured retention window.
type RetentionJob struct {
	store  *events.Store
	logger *slog.Logger
	cfg    *config.Config
	now    func() time.Time
	pause  time.Duration
}

func NewRetentionJob(store *events.Store, logger *slog.Logger, cfg *config.Config) *RetentionJob {
	return &RetentionJob{
		store:  store,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
		pause:  retentionBatchPause,
	}
}

// WithClock pins the time the retention cutoff is computed from.
func (j *RetentionJob) WithClock(now func() time.Time) *RetentionJob {
	j.now = now
	j.pause = 0
	return j
}

// Cutoff is the first timestamp that is kept.
func (j *RetentionJob) Cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.cfg.EventRetentionDays)
}

// Run removes expired events in batches and returns how many were deleted.
// It does nothing when retention is disabled.
func (j *RetentionJob) Run(ctx context.Context) (int64, error) {
	if !j.cfg.RetentionEnabled() {
		j.logger.Debug("Event retention disabled - keeping all events")
		return 0, nil
	}

	cutoff := j.Cutoff()
	j.logger.Info("Starting event retention",
		slog.Int("retention_days", j.cfg.EventRetentionDays),
		slog.Time("cutoff", cutoff))

	var totalDeleted int64
	for {
		deleted, err := j.store.DeleteBefore(ctx, cutoff, retentionBatchSize)
		if err != nil {
			j.logger.Error("Failed to delete expired events",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			return totalDeleted, fmt.Errorf("error purging events: %w", err)
		}

		totalDeleted += deleted
		metrics.RecordRetentionDeleted(deleted)

		if deleted < retentionBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		case <-time.After(j.pause):
		}
	}

	j.logger.Info("Event retention finished",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", j.cfg.EventRetentionDays))
	return totalDeleted, nil
}
