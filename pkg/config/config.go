package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the airdrop onboarding bot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Logger LoggerConfig `mapstructure:"logger"`
	Bot    BotConfig    `mapstructure:"bot" validate:"required"`
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"database" validate:"required"`
	Redis  RedisConfig  `mapstructure:"redis" validate:"required"`
	Sentry SentryConfig `mapstructure:"sentry"`

	Verification VerificationConfig `mapstructure:"verification" validate:"required"`
	Referral     ReferralConfig     `mapstructure:"referral" validate:"required"`
	Twitter      TwitterConfig      `mapstructure:"twitter"`
	TaskAPI      TaskAPIConfig      `mapstructure:"task_api" validate:"required"`
	Session      SessionConfig      `mapstructure:"session"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format   string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	File     string `mapstructure:"file"`
	MaxSize  int    `mapstructure:"max_size"`
	MaxAge   int    `mapstructure:"max_age"`
	Backups  int    `mapstructure:"backups"`
	Compress bool   `mapstructure:"compress"`
}

type BotConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	Mode  string `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	// WebhookListen is the webhook bind address. It must differ from the
	// server port, which serves health and metrics.
	WebhookListen string        `mapstructure:"webhook_listen"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode,
	)
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// VerificationConfig drives the membership check and its background poller.
type VerificationConfig struct {
	Groups       []string      `mapstructure:"groups" validate:"required,min=1"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// ReferralConfig describes the referral deep link. The base URL must stay
// stable: existing shared links embed it.
type ReferralConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

// Link renders the referral deep link for a user.
func (c ReferralConfig) Link(telegramID int64) string {
	return fmt.Sprintf("%s?start=%d", c.BaseURL, telegramID)
}

type TwitterConfig struct {
	PageLink string `mapstructure:"page_link"`
}

type TaskAPIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// ProfileTTL bounds how stale a cached user profile may be. Moderation
	// decisions land in the database directly, so keep this short.
	ProfileTTL time.Duration `mapstructure:"profile_ttl"`
}

type JobsConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	PendingReminderCron  string        `mapstructure:"pending_reminder_cron"`
	PendingReminderAfter time.Duration `mapstructure:"pending_reminder_after"`
}

// applyDefaults fills optional fields left empty by the config file.
func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Bot.Mode == "" {
		c.Bot.Mode = "polling"
	}
	if c.Bot.Timeout == 0 {
		c.Bot.Timeout = 30 * time.Second
	}
	if c.Bot.WebhookListen == "" {
		c.Bot.WebhookListen = ":8443"
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Verification.PollInterval == 0 {
		c.Verification.PollInterval = 30 * time.Second
	}
	if c.Verification.MaxAttempts == 0 {
		c.Verification.MaxAttempts = 20
	}
	if c.TaskAPI.Timeout == 0 {
		c.TaskAPI.Timeout = 10 * time.Second
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.ProfileTTL == 0 {
		c.Session.ProfileTTL = time.Minute
	}
	if c.Jobs.PendingReminderCron == "" {
		c.Jobs.PendingReminderCron = "0 */6 * * *"
	}
	if c.Jobs.PendingReminderAfter == 0 {
		c.Jobs.PendingReminderAfter = 24 * time.Hour
	}
}
