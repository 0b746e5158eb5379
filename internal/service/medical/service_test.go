package medical

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/service/audit"
	"github.com/jwalitptl/scheduling-api/internal/service/permission"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

func TestGetRecordForAppointment(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	doctor, appointmentID := uuid.New(), uuid.New()
	store.Grant(doctor, permission.ActionRecordView, appointmentID)

	svc := NewService(store.ClinicalRecords(), permission.NewService(store.Permissions(), permission.DefaultConfig()),
		audit.NewService(store.Audit()), nil)

	_, err := svc.GetRecordForAppointment(ctx, doctor, appointmentID, "")
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))

	created, err := store.ClinicalRecords().CreateIfAbsent(ctx, &model.ClinicalRecord{
		AppointmentID: appointmentID,
		PatientID:     uuid.New(),
		DoctorID:      doctor,
	})
	require.NoError(t, err)

	record, err := svc.GetRecordForAppointment(ctx, doctor, appointmentID, "follow-up review")
	require.NoError(t, err)
	assert.Equal(t, created.ID, record.ID)
	assert.Equal(t, model.ClinicalRecordStatusDraft, record.Status)

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "read", logs[0].Action)
	assert.Equal(t, "clinical_record", logs[0].ResourceType)
	assert.Equal(t, record.ID, logs[0].ResourceID)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(logs[0].Metadata, &meta))
	assert.Equal(t, "follow-up review", meta["access_reason"])
}

func TestGetRecordForAppointment_Unauthorized(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.ClinicalRecords(), permission.NewService(store.Permissions(), permission.DefaultConfig()),
		audit.NewService(store.Audit()), nil)

	_, err := svc.GetRecordForAppointment(context.Background(), uuid.New(), uuid.New(), "")
	assert.Equal(t, errors.ErrUnauthorized, errors.CodeOf(err))
	assert.Empty(t, store.AuditLogs())
}
