package jobs

import (
	"context"
	"log"
	"time"

	"aos/internal/services"
)

// RetentionCleanupJob deletes log events older than the retention window.
// Wisdom cards are the durable output of distillation and are never purged;
// only the raw telemetry they were compressed from expires.
type RetentionCleanupJob struct {
	logs          *services.LogStore
	retentionDays int
}

// NewRetentionCleanupJob creates a new retention cleanup job
func NewRetentionCleanupJob(logs *services.LogStore, retentionDays int) *RetentionCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RetentionCleanupJob{logs: logs, retentionDays: retentionDays}
}

// Run executes one retention pass
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	startTime := time.Now()

	deleted, err := j.logs.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("❌ [RETENTION] Log cleanup failed: %v", err)
		return err
	}

	if deleted > 0 {
		log.Printf("✅ [RETENTION] Deleted %d log events older than %s in %v",
			deleted, cutoff.Format(time.RFC3339), time.Since(startTime))
	}
	return nil
}
