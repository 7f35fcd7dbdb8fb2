// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Push      PushConfig      `mapstructure:"push"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig holds settings for the renewal notifier tick.
type SchedulerConfig struct {
	CronSpec    string `mapstructure:"cron_spec"`
	BatchSize   int    `mapstructure:"batch_size"`
	TickTimeout int    `mapstructure:"tick_timeout"` // milliseconds
}

// QueueConfig holds settings for the notification task queue and its worker.
type QueueConfig struct {
	Name             string          `mapstructure:"name"`
	Concurrency      int             `mapstructure:"concurrency"`
	Attempts         int             `mapstructure:"attempts"`
	BackoffDelay     int             `mapstructure:"backoff_delay"` // milliseconds
	PollInterval     int             `mapstructure:"poll_interval"` // milliseconds
	RemoveOnComplete RetentionConfig `mapstructure:"remove_on_complete"`
	RemoveOnFail     RetentionConfig `mapstructure:"remove_on_fail"`
}

// RetentionConfig mirrors the queue's keep policy for finished jobs.
type RetentionConfig struct {
	Age   int   `mapstructure:"age"` // seconds
	Count int64 `mapstructure:"count"`
}

// PushConfig holds settings for the Expo push gateway.
type PushConfig struct {
	Expo ExpoConfig `mapstructure:"expo"`
}

type ExpoConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	AccessToken string `mapstructure:"access_token"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
