// internal/queue/worker.go
package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"subtrack-notifier/internal/common/errors"
	"subtrack-notifier/internal/common/logger"
	"subtrack-notifier/internal/common/metrics"
	"subtrack-notifier/internal/common/observability"
)

// Handler processes one job. A nil return completes the job; a retryable
// error reschedules it with exponential backoff until the attempt budget is
// spent; a non-retryable error (per errors.IsRetryable) fails it terminally.
type Handler func(ctx context.Context, job *Job) error

// Worker drains a queue with a bounded pool of consumers.
type Worker struct {
	queue        *Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	logger       logger.Logger
	obs          *observability.Observability

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewWorker(q *Queue, handler Handler, concurrency int, pollInterval time.Duration, log logger.Logger, obs *observability.Observability) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		queue:        q,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       log.WithFields(map[string]interface{}{"queue": q.Name()}),
		obs:          obs,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the consumer pool. Non-blocking.
func (w *Worker) Start() {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run()
	}
	w.logger.Info("queue worker started", map[string]interface{}{
		"concurrency": w.concurrency,
	})
}

// Stop signals all consumers and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("queue worker stopped", nil)
}

func (w *Worker) run() {
	defer w.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil {
			w.logger.Error("queue poll failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if !processed {
			select {
			case <-w.stopCh:
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// ProcessOne promotes due delayed jobs, then claims and processes at most one
// waiting job. Returns false when the queue was empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	if err := w.promoteDue(ctx); err != nil {
		return false, err
	}

	id, err := w.queue.rdb.LMove(ctx, w.queue.waitingKey(), w.queue.activeKey(), "RIGHT", "LEFT").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	job, err := w.queue.getJob(ctx, id)
	if err != nil {
		// Orphaned id: envelope evicted or corrupt. Drop the claim.
		w.queue.rdb.LRem(ctx, w.queue.activeKey(), 1, id)
		w.logger.Warn("dropped orphaned job id", map[string]interface{}{
			"jobId": id,
		})
		return true, nil
	}

	w.process(ctx, job)
	return true, nil
}

// promoteDue moves delayed jobs whose run time has arrived back to waiting.
// ZRem is the claim: only the consumer that removes the member pushes it.
func (w *Worker) promoteDue(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	ids, err := w.queue.rdb.ZRangeByScore(ctx, w.queue.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(now),
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := w.queue.rdb.ZRem(ctx, w.queue.delayedKey(), id).Result()
		if err != nil {
			return err
		}
		if removed > 0 {
			if err := w.queue.rdb.LPush(ctx, w.queue.waitingKey(), id).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job *Job) {
	metrics.QueueJobsActive.WithLabelValues(w.queue.Name()).Inc()
	defer metrics.QueueJobsActive.WithLabelValues(w.queue.Name()).Dec()

	started := time.Now()
	err := w.handler(ctx, job)
	elapsed := time.Since(started)
	metrics.QueueJobDuration.WithLabelValues(w.queue.Name()).Observe(elapsed.Seconds())

	if err == nil {
		w.complete(ctx, job)
		if w.obs != nil {
			w.obs.RecordJobProcessed(ctx, "completed")
			w.obs.RecordJobDuration(ctx, elapsed, "completed")
		}
		return
	}

	w.fail(ctx, job, err)
	if w.obs != nil {
		w.obs.RecordJobProcessed(ctx, "failed")
		w.obs.RecordJobDuration(ctx, elapsed, "failed")
	}
}

func (w *Worker) complete(ctx context.Context, job *Job) {
	q := w.queue
	now := time.Now()

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.activeKey(), 1, job.ID)
	pipe.ZAdd(ctx, q.completedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	if job.KeepDoneSec > 0 {
		pipe.Expire(ctx, q.jobKey(job.ID), time.Duration(job.KeepDoneSec)*time.Second)
		cutoff := now.Add(-time.Duration(job.KeepDoneSec) * time.Second)
		pipe.ZRemRangeByScore(ctx, q.completedKey(), "-inf", formatScore(float64(cutoff.UnixMilli())))
	}
	if job.KeepDoneMax > 0 {
		pipe.ZRemRangeByRank(ctx, q.completedKey(), 0, -(job.KeepDoneMax + 1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Error("failed to record job completion", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
		return
	}

	metrics.QueueJobsCompleted.WithLabelValues(q.Name()).Inc()
	w.logger.Info("job completed", map[string]interface{}{
		"jobId":   job.ID,
		"jobName": job.Name,
		"attempt": job.Attempt + 1,
	})
}

func (w *Worker) fail(ctx context.Context, job *Job, jobErr error) {
	q := w.queue
	attemptsMade := job.Attempt + 1
	job.Attempt = attemptsMade
	job.LastError = jobErr.Error()

	terminal := !errors.IsRetryable(jobErr) || attemptsMade >= job.MaxAttempts
	if terminal {
		ttl := time.Duration(job.KeepFailSec) * time.Second
		if err := q.putJob(ctx, job, ttl); err != nil {
			w.logger.Error("failed to persist failed job", map[string]interface{}{
				"jobId": job.ID,
				"error": err.Error(),
			})
		}

		now := time.Now()
		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, q.activeKey(), 1, job.ID)
		pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		if job.KeepFailSec > 0 {
			cutoff := now.Add(-time.Duration(job.KeepFailSec) * time.Second)
			pipe.ZRemRangeByScore(ctx, q.failedKey(), "-inf", formatScore(float64(cutoff.UnixMilli())))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			w.logger.Error("failed to record job failure", map[string]interface{}{
				"jobId": job.ID,
				"error": err.Error(),
			})
		}

		metrics.QueueJobsFailed.WithLabelValues(q.Name(), string(errors.CodeOf(jobErr))).Inc()
		w.logger.Error("job failed terminally", map[string]interface{}{
			"jobId":     job.ID,
			"jobName":   job.Name,
			"attempt":   attemptsMade,
			"errorCode": string(errors.CodeOf(jobErr)),
			"error":     jobErr.Error(),
		})
		return
	}

	delay := NextBackoff(time.Duration(job.BackoffMS)*time.Millisecond, attemptsMade)
	runAt := time.Now().Add(delay)

	if err := q.putJob(ctx, job, 0); err != nil {
		w.logger.Error("failed to persist retried job", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.activeKey(), 1, job.ID)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Error("failed to reschedule job", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
		return
	}

	w.logger.Warn("job failed, scheduled retry", map[string]interface{}{
		"jobId":   job.ID,
		"jobName": job.Name,
		"attempt": attemptsMade,
		"delay":   delay.String(),
		"error":   jobErr.Error(),
	})
}

// NextBackoff returns the exponential retry delay after attemptsMade
// attempts: base, 2*base, 4*base, ...
func NextBackoff(base time.Duration, attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	delay := base
	for i := 1; i < attemptsMade; i++ {
		delay *= 2
	}
	return delay
}

// formatScore renders a zset score as the string bound ZRangeBy expects.
func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
