// Package queue implements a durable, deduplicated task queue on Redis:
// named queues, per-job retry budgets with exponential backoff, jobId-based
// dedupe, and age/count retention for finished jobs. Delivery is
// at-least-once; idempotency comes from the caller's dedupe keys.
package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrDuplicateJob is returned when a job with the same jobID was already
// admitted within the dedupe window.
var ErrDuplicateJob = stderrors.New("queue: duplicate job id")

// DedupeTTL is how long an admitted jobID blocks re-admission. Slightly over
// 24h so a day-keyed job cannot be re-admitted on the same calendar day even
// across clock drift or restarts.
const DedupeTTL = 25 * time.Hour

// Job is the envelope persisted per task.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"` // attempts made so far
	MaxAttempts int             `json:"max_attempts"`
	BackoffMS   int64           `json:"backoff_ms"`
	KeepDoneSec int64           `json:"keep_done_sec"`
	KeepDoneMax int64           `json:"keep_done_max"`
	KeepFailSec int64           `json:"keep_fail_sec"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// BackoffOptions configures retry spacing. Only exponential is supported.
type BackoffOptions struct {
	Type  string
	Delay time.Duration
}

// KeepPolicy bounds retention of finished jobs.
type KeepPolicy struct {
	Age   time.Duration
	Count int64
}

// Options mirror the enqueue contract of the product's queue.
type Options struct {
	Attempts         int
	Backoff          BackoffOptions
	RemoveOnComplete KeepPolicy
	RemoveOnFail     KeepPolicy
	JobID            string
}

// Stats is a point-in-time snapshot of queue depth.
type Stats struct {
	Waiting   int64
	Active    int64
	Delayed   int64
	Completed int64
	Failed    int64
}

// Queue is a named task queue. Safe for concurrent use; the Redis client is
// the only shared state.
type Queue struct {
	name string
	rdb  *redis.Client
}

func New(name string, rdb *redis.Client) *Queue {
	return &Queue{name: name, rdb: rdb}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) key(parts ...string) string {
	k := "queue:" + q.name
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (q *Queue) waitingKey() string { return q.key("waiting") }
func (q *Queue) activeKey() string { return q.key("active") }
func (q *Queue) delayedKey() string { return q.key("delayed") }
func (q *Queue) completedKey() string { return q.key("completed") }
func (q *Queue) failedKey() string { return q.key("failed") }
func (q *Queue) jobKey(id string) string { return q.key("job", id) }
func (q *Queue) dedupeKey(id string) string { return q.key("dedupe", id) }

// Enqueue admits a job to the queue. When opts.JobID is set, admission is
// deduplicated: a second enqueue with the same jobID inside DedupeTTL
// returns ErrDuplicateJob and leaves the first job untouched.
func (q *Queue) Enqueue(ctx context.Context, jobName string, payload interface{}, opts Options) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	} else {
		admitted, err := q.rdb.SetNX(ctx, q.dedupeKey(id), 1, DedupeTTL).Result()
		if err != nil {
			return "", fmt.Errorf("dedupe check: %w", err)
		}
		if !admitted {
			return "", ErrDuplicateJob
		}
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := opts.Backoff.Delay
	if backoff <= 0 {
		backoff = time.Second
	}

	job := Job{
		ID:          id,
		Name:        jobName,
		Payload:     data,
		MaxAttempts: attempts,
		BackoffMS:   backoff.Milliseconds(),
		KeepDoneSec: int64(opts.RemoveOnComplete.Age.Seconds()),
		KeepDoneMax: opts.RemoveOnComplete.Count,
		KeepFailSec: int64(opts.RemoveOnFail.Age.Seconds()),
		EnqueuedAt:  time.Now().UTC(),
	}

	envelope, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job envelope: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, q.jobKey(id), envelope, 0)
	pipe.LPush(ctx, q.waitingKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		// Roll the dedupe gate back so a transient submit failure does not
		// block the retried enqueue for a day.
		if opts.JobID != "" {
			q.rdb.Del(context.WithoutCancel(ctx), q.dedupeKey(id))
		}
		return "", fmt.Errorf("submit job: %w", err)
	}

	return id, nil
}

// Stats reports queue depth across all job states.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.waitingKey())
	active := pipe.LLen(ctx, q.activeKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	completed := pipe.ZCard(ctx, q.completedKey())
	failed := pipe.ZCard(ctx, q.failedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	return &Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// FailedJobs returns up to n most recently failed job envelopes.
func (q *Queue) FailedJobs(ctx context.Context, n int64) ([]Job, error) {
	ids, err := q.rdb.ZRevRange(ctx, q.failedKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}

	var jobs []Job
	for _, id := range ids {
		job, err := q.getJob(ctx, id)
		if err != nil {
			continue // envelope may have been evicted by retention
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (q *Queue) getJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.rdb.Get(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) putJob(ctx context.Context, job *Job, ttl time.Duration) error {
	envelope, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}
	return q.rdb.Set(ctx, q.jobKey(job.ID), envelope, ttl).Err()
}
