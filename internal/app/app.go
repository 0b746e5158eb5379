// Package app wires configuration into repositories, services and brokers so
// the api, worker and schedctl binaries build them the same way.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-api/internal/service/appointment"
	"github.com/jwalitptl/scheduling-api/internal/service/audit"
	"github.com/jwalitptl/scheduling-api/internal/service/availability"
	"github.com/jwalitptl/scheduling-api/internal/service/event"
	"github.com/jwalitptl/scheduling-api/internal/service/medical"
	"github.com/jwalitptl/scheduling-api/internal/service/permission"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/messaging/kafka"
	"github.com/jwalitptl/scheduling-api/pkg/messaging/redis"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

type Repositories struct {
	Schedules       repository.ScheduleRepository
	Appointments    repository.AppointmentRepository
	Reminders       repository.ReminderRepository
	ClinicalRecords repository.ClinicalRecordRepository
	Outbox          repository.OutboxRepository
	Audit           repository.AuditRepository
	Directory       repository.DirectoryRepository
	Permissions     repository.PermissionRepository
}

func PostgresRepositories(db *sqlx.DB) Repositories {
	base := postgres.NewBaseRepository(db)
	return Repositories{
		Schedules:       postgres.NewScheduleRepository(base),
		Appointments:    postgres.NewAppointmentRepository(base),
		Reminders:       postgres.NewReminderRepository(base),
		ClinicalRecords: postgres.NewClinicalRecordRepository(base),
		Outbox:          postgres.NewOutboxRepository(base),
		Audit:           postgres.NewAuditRepository(base),
		Directory:       postgres.NewDirectoryRepository(base),
		Permissions:     postgres.NewPermissionRepository(base),
	}
}

func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Schedules:       store.Schedules(),
		Appointments:    store.Appointments(),
		Reminders:       store.Reminders(),
		ClinicalRecords: store.ClinicalRecords(),
		Outbox:          store.Outbox(),
		Audit:           store.Audit(),
		Directory:       store.Directory(),
		Permissions:     store.Permissions(),
	}
}

type Services struct {
	Permissions  *permission.Service
	Availability *availability.Service
	Appointments *appointment.Service
	Records      *medical.Service
}

func NewServices(cfg *config.Config, repos Repositories, log *logger.Logger, m *metrics.Metrics) *Services {
	permCfg := permission.DefaultConfig()
	if cfg.Permissions.CacheTTL > 0 {
		permCfg.CacheDuration = cfg.Permissions.CacheTTL
	}
	authz := permission.NewService(repos.Permissions, permCfg)

	loc := cfg.Scheduling.Location()
	avail := availability.NewService(repos.Schedules, repos.Appointments, repos.Directory, authz,
		availability.Options{
			Location:             loc,
			DefaultLookAheadDays: cfg.Scheduling.DefaultLookAheadDays,
			MaxLookAheadDays:     cfg.Scheduling.MaxLookAheadDays,
		}, m)

	auditor := audit.NewService(repos.Audit)
	dispatcher := event.NewDispatcher(repos.Reminders, auditor, repos.Outbox, log, m)

	apts := appointment.NewService(repos.Appointments, repos.ClinicalRecords, repos.Directory, avail, authz, dispatcher,
		appointment.Config{
			Location:               loc,
			ReminderOffsets:        cfg.Scheduling.ReminderOffsets,
			ReminderChannels:       cfg.Scheduling.ReminderChannels,
			DefaultDurationMinutes: cfg.Scheduling.DefaultDuration,
		}, log, m)

	return &Services{
		Permissions:  authz,
		Availability: avail,
		Appointments: apts,
		Records:      medical.NewService(repos.ClinicalRecords, authz, auditor, log),
	}
}

func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Level),
		Output: os.Stdout,
		JSON:   strings.EqualFold(cfg.Format, "json"),
	})
}

// NewBroker connects the configured messaging driver.
func NewBroker(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	switch cfg.Messaging.Driver {
	case config.DriverRedis:
		b, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			StreamPrefix: cfg.Redis.StreamPrefix,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		}, log.Zerolog())
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverKafka:
		b, err := kafka.NewBroker(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			TopicPrefix:  cfg.Kafka.TopicPrefix,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverNone:
		return messaging.NewRecorder(), nil
	default:
		return nil, fmt.Errorf("unknown messaging driver %q", cfg.Messaging.Driver)
	}
}
