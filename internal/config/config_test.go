package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: db
  name: clinic
messaging:
  driver: kafka
kafka:
  brokers: "k1:9092,k2:9092"
scheduling:
  timezone: Europe/Berlin
  reminder_offsets: ["48h", "2h"]
  reminder_channels: ["email", "in_app"]
jwt:
  secret: file-secret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, DriverKafka, cfg.Messaging.Driver)
	assert.Equal(t, []time.Duration{48 * time.Hour, 2 * time.Hour}, cfg.Scheduling.ReminderOffsets)
	assert.Equal(t, []string{"email", "in_app"}, cfg.Scheduling.ReminderChannels)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduling.Location().String())
	assert.Equal(t, 7, cfg.Scheduling.DefaultLookAheadDays)
	assert.Equal(t, 30, cfg.Scheduling.MaxLookAheadDays)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, "host=db port=5432 user=postgres password= dbname=clinic sslmode=disable", cfg.Database.DSN())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: file-secret\n")
	t.Setenv("SCHED_DATABASE_HOST", "pg.internal")
	t.Setenv("SCHED_JWT_SECRET", "env-secret")
	t.Setenv("SCHED_SCHEDULING_REMINDER_OFFSETS", "12h,30m")
	t.Setenv("SCHED_OUTBOX_RETRY_DELAY", "1m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, []time.Duration{12 * time.Hour, 30 * time.Minute}, cfg.Scheduling.ReminderOffsets)
	assert.Equal(t, time.Minute, cfg.Outbox.RetryDelay)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		path := writeConfig(t, "jwt:\n  secret: s\n")
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Messaging.Driver = "nats" }},
		{"kafka without brokers", func(c *Config) { c.Messaging.Driver = DriverKafka; c.Kafka.Brokers = " " }},
		{"bad timezone", func(c *Config) { c.Scheduling.Timezone = "Mars/Olympus" }},
		{"default look ahead above max", func(c *Config) { c.Scheduling.DefaultLookAheadDays = 31 }},
		{"negative reminder offset", func(c *Config) { c.Scheduling.ReminderOffsets = []time.Duration{-time.Hour} }},
		{"unknown channel", func(c *Config) { c.Scheduling.ReminderChannels = []string{"sms"} }},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }},
		{"zero outbox batch", func(c *Config) { c.Outbox.BatchSize = 0 }},
	}

	assert.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
