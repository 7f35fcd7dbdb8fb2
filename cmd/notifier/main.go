// cmd/notifier/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"subtrack-notifier/internal/common/config"
	"subtrack-notifier/internal/common/database"
	"subtrack-notifier/internal/common/expo"
	"subtrack-notifier/internal/common/logger"
	"subtrack-notifier/internal/common/observability"
	"subtrack-notifier/internal/queue"
	"subtrack-notifier/internal/scheduler"
	"subtrack-notifier/internal/store"

	sendreminder "subtrack-notifier/internal/workers/push/send-reminder"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting renewal notifier...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Notification Queue ---
	notificationQueue := queue.New(cfg.Queue.Name, redis.Client)
	if err := queue.CheckHealth(ctx, notificationQueue, log); err != nil {
		zapLog.Fatal("queue health check failed", zap.Error(err))
	}

	// --- Dispatch Worker ---
	expoClient := expo.NewClient(
		cfg.Push.Expo.BaseURL,
		cfg.Push.Expo.AccessToken,
		config.GetDuration(cfg.Push.Expo.Timeout),
	)

	reminderCfg := &sendreminder.Config{
		Enabled: true,
		Timeout: config.GetDuration(cfg.Push.Expo.Timeout),
		Sound:   "default",
	}
	if err := reminderCfg.Validate(); err != nil {
		zapLog.Fatal("send-reminder config invalid", zap.Error(err))
	}
	reminderHandler := sendreminder.NewHandler(reminderCfg, expoClient, log)

	worker := queue.NewWorker(
		notificationQueue,
		reminderHandler.Handle,
		cfg.Queue.Concurrency,
		config.GetDuration(cfg.Queue.PollInterval),
		log, obs,
	)
	worker.Start()

	// --- Renewal Notifier ---
	repo := store.NewPostgresSubscriptionRepository(pg.DB)
	notifier := scheduler.NewNotifier(repo, notificationQueue, cfg.Scheduler, cfg.Queue, log)
	if err := notifier.Start(); err != nil {
		zapLog.Fatal("notifier start failed", zap.Error(err))
	}

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := redis.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping notifier...")

	notifier.Stop()
	worker.Stop()

	zapLog.Info("Renewal notifier stopped gracefully")
}
