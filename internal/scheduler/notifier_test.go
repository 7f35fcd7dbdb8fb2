// internal/scheduler/notifier_test.go
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack-notifier/internal/common/config"
	"subtrack-notifier/internal/common/errors"
	"subtrack-notifier/internal/common/logger"
	"subtrack-notifier/internal/models"
	"subtrack-notifier/internal/queue"
)

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) { tl.t.Logf("DEBUG: %s %v", msg, fields) }
func (tl *testLogger) Info(msg string, fields map[string]interface{})  { tl.t.Logf("INFO: %s %v", msg, fields) }
func (tl *testLogger) Warn(msg string, fields map[string]interface{})  { tl.t.Logf("WARN: %s %v", msg, fields) }
func (tl *testLogger) Error(msg string, fields map[string]interface{}) { tl.t.Logf("ERROR: %s %v", msg, fields) }
func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger { return tl }
func (tl *testLogger) WithError(err error) logger.Logger                      { return tl }

// fakeRepo serves subscriptions in keyset order.
type fakeRepo struct {
	subs    []models.Subscription
	loadErr error
	calls   int
}

func (r *fakeRepo) ListNotificationsEnabled(ctx context.Context, afterID string, limit int) ([]models.Subscription, error) {
	r.calls++
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	start := 0
	if afterID != "" {
		for i, s := range r.subs {
			if s.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(r.subs) {
		end = len(r.subs)
	}
	return r.subs[start:end], nil
}

// fakeEnqueuer records admitted jobs and simulates the queue's dedupe gate.
type fakeEnqueuer struct {
	admitted map[string]queue.Options
	payloads map[string]json.RawMessage
	failFor  map[string]error
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{
		admitted: map[string]queue.Options{},
		payloads: map[string]json.RawMessage{},
		failFor:  map[string]error{},
	}
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobName string, payload interface{}, opts queue.Options) (string, error) {
	var data models.ReminderJobData
	raw, _ := json.Marshal(payload)
	json.Unmarshal(raw, &data)
	if err, ok := f.failFor[data.SubscriptionID]; ok {
		return "", err
	}
	if _, dup := f.admitted[opts.JobID]; dup {
		return "", queue.ErrDuplicateJob
	}
	f.admitted[opts.JobID] = opts
	f.payloads[opts.JobID] = raw
	return opts.JobID, nil
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{CronSpec: "* * * * *", BatchSize: 100, TickTimeout: 30000}
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Name:         "notifications",
		Concurrency:  5,
		Attempts:     3,
		BackoffDelay: 2000,
		RemoveOnComplete: config.RetentionConfig{Age: 3600, Count: 1000},
		RemoveOnFail:     config.RetentionConfig{Age: 86400},
	}
}

func newTestNotifier(t *testing.T, repo *fakeRepo, q *fakeEnqueuer, now time.Time) *Notifier {
	n := NewNotifier(repo, q, testSchedulerConfig(), testQueueConfig(), &testLogger{t})
	n.now = func() time.Time { return now }
	return n
}

func monthlySub(id, title, token string, start time.Time) models.Subscription {
	return models.Subscription{
		ID:         id,
		OwnerID:    "user-" + id,
		Title:      title,
		Amount:     9.99,
		Recurrence: models.RecurrenceMonthly,
		StartDate:  start,
		Enabled:    true,
		ExpoToken:  token,
	}
}

func TestRunTick_EnqueuesReminderDueTomorrow(t *testing.T) {
	// Started 2025-01-01, monthly. On 2025-03-31 the next renewal is
	// 2025-04-01, which is tomorrow.
	now := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{subs: []models.Subscription{
		monthlySub("sub-1", "Netflix", "ExponentPushToken[abc]", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}}
	q := newFakeEnqueuer()

	require.NoError(t, newTestNotifier(t, repo, q, now).RunTick(context.Background()))

	jobID := "renewal-reminder-sub-1-2025-03-31"
	require.Contains(t, q.admitted, jobID)

	opts := q.admitted[jobID]
	assert.Equal(t, 3, opts.Attempts)
	assert.Equal(t, 2*time.Second, opts.Backoff.Delay)
	assert.Equal(t, time.Hour, opts.RemoveOnComplete.Age)
	assert.Equal(t, int64(1000), opts.RemoveOnComplete.Count)
	assert.Equal(t, 24*time.Hour, opts.RemoveOnFail.Age)

	var data models.ReminderJobData
	require.NoError(t, json.Unmarshal(q.payloads[jobID], &data))
	assert.Equal(t, "ExponentPushToken[abc]", data.ExpoToken)
	assert.Equal(t, models.ReminderTitle, data.Title)
	assert.Equal(t, "Netflix", data.SubscriptionTitle)
	assert.Equal(t, "sub-1", data.SubscriptionID)
}

func TestRunTick_SkipsSubscriptionNotDueTomorrow(t *testing.T) {
	// Started 2025-01-01, monthly. On 2025-03-01 the next renewal is
	// 2025-04-01, a month away, so nothing is due tomorrow.
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{subs: []models.Subscription{
		monthlySub("sub-1", "Netflix", "ExponentPushToken[abc]", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}}
	q := newFakeEnqueuer()

	require.NoError(t, newTestNotifier(t, repo, q, now).RunTick(context.Background()))
	assert.Empty(t, q.admitted)
}

func TestRunTick_SecondRunSameDayIsDeduplicated(t *testing.T) {
	now := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{subs: []models.Subscription{
		monthlySub("sub-1", "Netflix", "ExponentPushToken[abc]", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}}
	q := newFakeEnqueuer()
	n := newTestNotifier(t, repo, q, now)

	require.NoError(t, n.RunTick(context.Background()))
	require.NoError(t, n.RunTick(context.Background()))

	assert.Len(t, q.admitted, 1, "one reminder per subscription per day")
}

func TestRunTick_EnqueueFailureDoesNotAbortTick(t *testing.T) {
	now := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{subs: []models.Subscription{
		monthlySub("sub-a", "Netflix", "ExponentPushToken[a]", start),
		monthlySub("sub-b", "Spotify", "ExponentPushToken[b]", start),
	}}
	q := newFakeEnqueuer()
	q.failFor["sub-a"] = errors.NewEnqueueError("redis connection reset")

	require.NoError(t, newTestNotifier(t, repo, q, now).RunTick(context.Background()))

	assert.NotContains(t, q.admitted, "renewal-reminder-sub-a-2025-03-31")
	assert.Contains(t, q.admitted, "renewal-reminder-sub-b-2025-03-31")
}

func TestRunTick_UnrecognizedRecurrenceIsSkippedNotFatal(t *testing.T) {
	now := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	corrupt := monthlySub("sub-a", "Mystery", "ExponentPushToken[a]", start)
	corrupt.Recurrence = "fortnightly"
	repo := &fakeRepo{subs: []models.Subscription{
		corrupt,
		monthlySub("sub-b", "Spotify", "ExponentPushToken[b]", start),
	}}
	q := newFakeEnqueuer()

	require.NoError(t, newTestNotifier(t, repo, q, now).RunTick(context.Background()))

	assert.Len(t, q.admitted, 1)
	assert.Contains(t, q.admitted, "renewal-reminder-sub-b-2025-03-31")
}

func TestRunTick_TokenlessOwnerProducesNoTask(t *testing.T) {
	now := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{subs: []models.Subscription{
		monthlySub("sub-1", "Netflix", "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}}
	q := newFakeEnqueuer()

	require.NoError(t, newTestNotifier(t, repo, q, now).RunTick(context.Background()))
	assert.Empty(t, q.admitted)
}

func TestRunTick_LoadFailureAbortsTick(t *testing.T) {
	repo := &fakeRepo{loadErr: errors.NewSubscriptionLoadError("connection refused")}
	q := newFakeEnqueuer()

	err := newTestNotifier(t, repo, q, time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)).RunTick(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSubscriptionLoadFailed, errors.CodeOf(err))
	assert.Empty(t, q.admitted)
}

func TestRunTick_PaginatesThroughAllSubscriptions(t *testing.T) {
	now := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var subs []models.Subscription
	for i := 0; i < 250; i++ {
		subs = append(subs, monthlySub(fmt.Sprintf("sub-%03d", i), "Svc", fmt.Sprintf("ExponentPushToken[%03d]", i), start))
	}
	repo := &fakeRepo{subs: subs}
	q := newFakeEnqueuer()

	require.NoError(t, newTestNotifier(t, repo, q, now).RunTick(context.Background()))

	assert.Len(t, q.admitted, 250)
	assert.GreaterOrEqual(t, repo.calls, 3, "250 subscriptions at batch size 100 takes three pages")
}

func TestReminderJobID_EmbedsSchedulingDay(t *testing.T) {
	today := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "renewal-reminder-sub-1-2025-03-31", ReminderJobID("sub-1", today))
}
