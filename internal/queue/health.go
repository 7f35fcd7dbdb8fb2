// internal/queue/health.go
package queue

import (
	"context"
	"fmt"

	"subtrack-notifier/internal/common/logger"
)

// CheckHealth verifies Redis connectivity and logs queue depth at startup,
// surfacing recent failed jobs so operators notice stuck reminders early.
func CheckHealth(ctx context.Context, q *Queue, log logger.Logger) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue redis connection not ready: %w", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		return err
	}

	log.Info("queue connected", map[string]interface{}{
		"queue":     q.Name(),
		"waiting":   stats.Waiting,
		"active":    stats.Active,
		"delayed":   stats.Delayed,
		"completed": stats.Completed,
		"failed":    stats.Failed,
	})

	if stats.Failed > 0 {
		failed, err := q.FailedJobs(ctx, 5)
		if err != nil {
			log.Warn("could not list failed jobs", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		log.Warn("queue has failed jobs", map[string]interface{}{
			"failed": stats.Failed,
		})
		for _, job := range failed {
			log.Error("failed job", map[string]interface{}{
				"jobId":    job.ID,
				"jobName":  job.Name,
				"attempts": job.Attempt,
				"reason":   job.LastError,
			})
		}
	}

	if stats.Waiting > 0 {
		log.Info("jobs waiting to be processed", map[string]interface{}{
			"waiting": stats.Waiting,
		})
	}

	return nil
}
