package permission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/scheduling-api/internal/repository"
)

// Actions checked before scheduling operations.
const (
	ActionRequest            = "appointment.request"
	ActionAccept             = "appointment.accept"
	ActionReject             = "appointment.reject"
	ActionReschedule         = "appointment.reschedule"
	ActionStartConsultation  = "appointment.start"
	ActionComplete           = "appointment.complete"
	ActionCancelConsultation = "appointment.cancel_consultation"
	ActionCancel             = "appointment.cancel"
	ActionView               = "appointment.view"
	ActionScheduleUpdate     = "schedule.update"
	ActionRecordView         = "clinical_record.view"
)

// Authorizer answers whether a user may perform an action on a resource.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID uuid.UUID, action string, resourceID uuid.UUID) (bool, error)
}

type Config struct {
	CacheDuration   time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CacheDuration:   time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// Service caches permission lookups for a short time. Only positive and
// negative answers are cached; lookup errors are not.
type Service struct {
	repo  repository.PermissionRepository
	cache *cache.Cache
}

func NewService(repo repository.PermissionRepository, cfg Config) *Service {
	return &Service{
		repo:  repo,
		cache: cache.New(cfg.CacheDuration, cfg.CleanupInterval),
	}
}

func (s *Service) IsAuthorized(ctx context.Context, userID uuid.UUID, action string, resourceID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}

	key := fmt.Sprintf("%s|%s|%s", userID, action, resourceID)
	if cached, found := s.cache.Get(key); found {
		return cached.(bool), nil
	}

	ok, err := s.repo.HasPermission(ctx, userID, action, resourceID)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	s.cache.SetDefault(key, ok)
	return ok, nil
}

// Invalidate drops every cached answer, for use after grants change.
func (s *Service) Invalidate() {
	s.cache.Flush()
}
