package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/scheduling-api/internal/model"
)

// EnvPrefix namespaces environment overrides, e.g. SCHED_DATABASE_HOST.
const EnvPrefix = "SCHED"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Messaging   MessagingConfig   `mapstructure:"messaging"`
	Scheduling  SchedulingConfig  `mapstructure:"scheduling"`
	Reminders   RemindersConfig   `mapstructure:"reminders"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" split_words:"true"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" split_words:"true"`
	// WorkerHealthPort serves /health and /metrics of cmd/worker.
	WorkerHealthPort int `mapstructure:"worker_health_port" split_words:"true"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	StreamPrefix string        `mapstructure:"stream_prefix" split_words:"true"`
	StreamMaxLen int64         `mapstructure:"stream_max_len" split_words:"true"`
}

type KafkaConfig struct {
	Brokers      string        `mapstructure:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix" split_words:"true"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" split_words:"true"`
}

const (
	DriverRedis = "redis"
	DriverKafka = "kafka"
	// DriverNone keeps published messages in process; for local runs.
	DriverNone = "none"
)

type MessagingConfig struct {
	Driver string `mapstructure:"driver"`
}

type SchedulingConfig struct {
	Timezone             string          `mapstructure:"timezone"`
	DefaultLookAheadDays int             `mapstructure:"default_look_ahead_days" split_words:"true"`
	MaxLookAheadDays     int             `mapstructure:"max_look_ahead_days" split_words:"true"`
	ReminderOffsets      []time.Duration `mapstructure:"reminder_offsets" split_words:"true"`
	ReminderChannels     []string        `mapstructure:"reminder_channels" split_words:"true"`
	DefaultDuration      int             `mapstructure:"default_duration_minutes" split_words:"true"`
}

// Location resolves Timezone; Validate has already checked it loads.
func (s SchedulingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type RemindersConfig struct {
	BatchSize    int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval time.Duration `mapstructure:"poll_interval" split_words:"true"`
	MaxAttempts  int           `mapstructure:"max_attempts" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval    time.Duration `mapstructure:"poll_interval" split_words:"true"`
	RetryAttempts   int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" split_words:"true"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst"`
}

type PermissionsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" split_words:"true"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("server.worker_health_port", 8081)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "scheduling")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.stream_prefix", "scheduling:")
	v.SetDefault("redis.stream_max_len", 100000)

	v.SetDefault("kafka.topic_prefix", "scheduling.")
	v.SetDefault("kafka.batch_timeout", 50*time.Millisecond)

	v.SetDefault("messaging.driver", DriverRedis)

	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.default_look_ahead_days", 7)
	v.SetDefault("scheduling.max_look_ahead_days", 30)
	v.SetDefault("scheduling.reminder_offsets", []string{"24h", "1h"})
	v.SetDefault("scheduling.reminder_channels", []string{model.ChannelEmail})
	v.SetDefault("scheduling.default_duration_minutes", 30)

	v.SetDefault("reminders.batch_size", 100)
	v.SetDefault("reminders.poll_interval", 30*time.Second)
	v.SetDefault("reminders.max_attempts", 3)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 10*time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 1025)
	v.SetDefault("smtp.from", "no-reply@clinic.local")

	v.SetDefault("jwt.leeway", 30*time.Second)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("permissions.cache_ttl", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads config.yml (path may be empty to search the usual
// locations), then applies a .env file if present, then SCHED_* overrides.
// A missing config file is not an error; defaults and the environment are
// enough to run.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects impossible values.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be a valid port")
	check(c.Database.Host != "", "database.host is required")
	check(c.Database.Name != "", "database.name is required")

	switch c.Messaging.Driver {
	case DriverRedis:
		check(c.Redis.URL != "", "redis.url is required for the redis driver")
	case DriverKafka:
		check(strings.TrimSpace(c.Kafka.Brokers) != "", "kafka.brokers is required for the kafka driver")
	case DriverNone:
	default:
		problems = append(problems, fmt.Sprintf("messaging.driver %q is not one of redis, kafka, none", c.Messaging.Driver))
	}

	s := c.Scheduling
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("scheduling.timezone: %v", err))
	}
	check(s.MaxLookAheadDays > 0, "scheduling.max_look_ahead_days must be positive")
	check(s.DefaultLookAheadDays >= 0 && s.DefaultLookAheadDays <= s.MaxLookAheadDays,
		"scheduling.default_look_ahead_days must be between 0 and max_look_ahead_days")
	check(s.DefaultDuration > 0, "scheduling.default_duration_minutes must be positive")
	for _, off := range s.ReminderOffsets {
		check(off > 0, "scheduling.reminder_offsets must be positive durations")
	}
	for _, ch := range s.ReminderChannels {
		check(ch == model.ChannelEmail || ch == model.ChannelInApp,
			fmt.Sprintf("scheduling.reminder_channels: unknown channel %q", ch))
	}

	check(c.Reminders.BatchSize > 0 && c.Reminders.PollInterval > 0 && c.Reminders.MaxAttempts > 0,
		"reminders batch_size, poll_interval and max_attempts must be positive")
	check(c.Outbox.BatchSize > 0 && c.Outbox.PollInterval > 0 && c.Outbox.RetryAttempts > 0 && c.Outbox.RetryDelay > 0,
		"outbox batch_size, poll_interval, retry_attempts and retry_delay must be positive")
	check(c.JWT.Secret != "", "jwt.secret is required")
	check(!c.RateLimit.Enabled || (c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst > 0),
		"ratelimit requests_per_second and burst must be positive when enabled")

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DSN is the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
