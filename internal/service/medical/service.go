package medical

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/service/audit"
	"github.com/jwalitptl/scheduling-api/internal/service/permission"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
)

const resourceClinicalRecord = "clinical_record"

// Service gives read access to the clinical record opened when a
// consultation starts. Every successful read is audited.
type Service struct {
	records repository.ClinicalRecordRepository
	authz   permission.Authorizer
	auditor *audit.Service
	log     *logger.Logger
}

func NewService(records repository.ClinicalRecordRepository, authz permission.Authorizer, auditor *audit.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		records: records,
		authz:   authz,
		auditor: auditor,
		log:     log,
	}
}

// GetRecordForAppointment returns the record linked to appointmentID.
// accessReason is stored with the audit entry.
func (s *Service) GetRecordForAppointment(ctx context.Context, actorID, appointmentID uuid.UUID, accessReason string) (*model.ClinicalRecord, error) {
	ok, err := s.authz.IsAuthorized(ctx, actorID, permission.ActionRecordView, appointmentID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if !ok {
		return nil, errors.New(errors.ErrUnauthorized, "you are not allowed to view the clinical record of this appointment")
	}

	record, err := s.records.GetByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("clinical record", err)
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to load clinical record: %w", err))
	}

	metadata := map[string]string{"appointment_id": appointmentID.String()}
	if accessReason != "" {
		metadata["access_reason"] = accessReason
	}
	if err := s.auditor.Record(ctx, actorID, "read", resourceClinicalRecord, record.ID, metadata); err != nil {
		s.log.Error(err, "failed to audit clinical record access",
			"record_id", record.ID.String(),
			"user_id", actorID.String())
	}
	return record, nil
}
