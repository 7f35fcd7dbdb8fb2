// Package scheduler runs the renewal notifier: a cron-driven tick that scans
// subscriptions, finds the ones renewing tomorrow, and admits one reminder
// task per subscription per day to the notification queue.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"subtrack-notifier/internal/common/config"
	"subtrack-notifier/internal/common/logger"
	"subtrack-notifier/internal/common/metrics"
	"subtrack-notifier/internal/models"
	"subtrack-notifier/internal/queue"
	"subtrack-notifier/internal/renewal"
	"subtrack-notifier/internal/store"
)

// Enqueuer is the slice of the queue the notifier needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobName string, payload interface{}, opts queue.Options) (string, error)
}

// Notifier scans subscriptions on a cron schedule and enqueues renewal
// reminders for the ones due tomorrow.
type Notifier struct {
	repo   store.SubscriptionRepository
	queue  Enqueuer
	cfg    config.SchedulerConfig
	jobCfg config.QueueConfig
	logger logger.Logger
	now    func() time.Time

	cron *cron.Cron
}

func NewNotifier(repo store.SubscriptionRepository, q Enqueuer, cfg config.SchedulerConfig, jobCfg config.QueueConfig, log logger.Logger) *Notifier {
	return &Notifier{
		repo:   repo,
		queue:  q,
		cfg:    cfg,
		jobCfg: jobCfg,
		logger: log.WithFields(map[string]interface{}{"component": "renewal-notifier"}),
		now:    time.Now,
	}
}

// Start registers the tick on the cron schedule and begins running it.
// Overlapping ticks are skipped rather than stacked.
func (n *Notifier) Start() error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	_, err := c.AddFunc(n.cfg.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.GetDuration(n.cfg.TickTimeout))
		defer cancel()

		if err := n.RunTick(ctx); err != nil {
			n.logger.Error("notifier tick failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", n.cfg.CronSpec, err)
	}

	c.Start()
	n.cron = c
	n.logger.Info("renewal notifier started", map[string]interface{}{
		"cronSpec":  n.cfg.CronSpec,
		"batchSize": n.cfg.BatchSize,
	})
	return nil
}

// Stop halts the cron scheduler and waits for a running tick to finish.
func (n *Notifier) Stop() {
	if n.cron == nil {
		return
	}
	<-n.cron.Stop().Done()
	n.logger.Info("renewal notifier stopped", nil)
}

// RunTick performs one full scan. The calendar day is fixed once at the start
// of the tick, so every subscription in the scan is judged against the same
// "tomorrow" even if the tick crosses midnight.
func (n *Notifier) RunTick(ctx context.Context) error {
	started := n.now()
	metrics.NotifierTicks.Inc()
	defer func() {
		metrics.NotifierTickDuration.Observe(time.Since(started).Seconds())
	}()

	today := renewal.Day(started)
	tomorrow := today.AddDate(0, 0, 1)

	n.logger.Info("notifier tick started", map[string]interface{}{
		"today":    today.Format("2006-01-02"),
		"tomorrow": tomorrow.Format("2006-01-02"),
	})

	var scanned, enqueued int
	afterID := ""
	for {
		subs, err := n.repo.ListNotificationsEnabled(ctx, afterID, n.cfg.BatchSize)
		if err != nil {
			n.logger.Error("subscription scan failed, aborting tick", map[string]interface{}{
				"afterId": afterID,
				"error":   err.Error(),
			})
			return err
		}
		if len(subs) == 0 {
			break
		}

		for i := range subs {
			scanned++
			if n.notifyIfDueTomorrow(ctx, &subs[i], today, tomorrow) {
				enqueued++
			}
		}

		afterID = subs[len(subs)-1].ID
		if len(subs) < n.cfg.BatchSize {
			break
		}
	}

	n.logger.Info("notifier tick finished", map[string]interface{}{
		"scanned":  scanned,
		"enqueued": enqueued,
		"duration": time.Since(started).String(),
	})
	return nil
}

// notifyIfDueTomorrow enqueues a reminder for sub when its next renewal falls
// on tomorrow. Returns true only when a new task was admitted. Per-subscription
// failures never abort the surrounding tick.
func (n *Notifier) notifyIfDueTomorrow(ctx context.Context, sub *models.Subscription, today, tomorrow time.Time) bool {
	next, err := renewal.NextRenewal(sub.StartDate, sub.Recurrence, today)
	if err != nil {
		metrics.RemindersSkipped.WithLabelValues("unrecognized_recurrence").Inc()
		n.logger.Error("skipping subscription with unrecognized recurrence", map[string]interface{}{
			"subscriptionId": sub.ID,
			"recurrence":     string(sub.Recurrence),
			"error":          err.Error(),
		})
		return false
	}

	if !renewal.RenewsOn(next, tomorrow) {
		return false
	}

	if sub.ExpoToken == "" {
		metrics.RemindersSkipped.WithLabelValues("missing_token").Inc()
		n.logger.Debug("subscription due tomorrow but owner has no push token", map[string]interface{}{
			"subscriptionId": sub.ID,
		})
		return false
	}

	jobID := ReminderJobID(sub.ID, today)
	data := models.ReminderJobData{
		ExpoToken:         sub.ExpoToken,
		Title:             models.ReminderTitle,
		SubscriptionTitle: sub.Title,
		SubscriptionID:    sub.ID,
	}

	_, err = n.queue.Enqueue(ctx, models.ReminderJobName, data, queue.Options{
		Attempts: n.jobCfg.Attempts,
		Backoff: queue.BackoffOptions{
			Type:  "exponential",
			Delay: config.GetDuration(n.jobCfg.BackoffDelay),
		},
		RemoveOnComplete: queue.KeepPolicy{
			Age:   time.Duration(n.jobCfg.RemoveOnComplete.Age) * time.Second,
			Count: n.jobCfg.RemoveOnComplete.Count,
		},
		RemoveOnFail: queue.KeepPolicy{
			Age: time.Duration(n.jobCfg.RemoveOnFail.Age) * time.Second,
		},
		JobID: jobID,
	})
	if stderrors.Is(err, queue.ErrDuplicateJob) {
		metrics.RemindersSkipped.WithLabelValues("duplicate").Inc()
		n.logger.Debug("reminder already enqueued today", map[string]interface{}{
			"subscriptionId": sub.ID,
			"jobId":          jobID,
		})
		return false
	}
	if err != nil {
		metrics.EnqueueFailures.Inc()
		n.logger.Error("failed to enqueue renewal reminder", map[string]interface{}{
			"subscriptionId": sub.ID,
			"jobId":          jobID,
			"error":          err.Error(),
		})
		return false
	}

	metrics.RemindersEnqueued.Inc()
	n.logger.Info("renewal reminder enqueued", map[string]interface{}{
		"subscriptionId": sub.ID,
		"title":          sub.Title,
		"renewsOn":       tomorrow.Format("2006-01-02"),
		"jobId":          jobID,
	})
	return true
}

// ReminderJobID builds the per-subscription-per-day dedupe key. The embedded
// date is the scheduling day, so re-running a tick on the same day cannot
// produce a second task for the same subscription.
func ReminderJobID(subscriptionID string, today time.Time) string {
	return fmt.Sprintf("renewal-reminder-%s-%s", subscriptionID, today.Format("2006-01-02"))
}
