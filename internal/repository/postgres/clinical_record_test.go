package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

func startedAppointment() *model.Appointment {
	return &model.Appointment{
		Base:            model.Base{ID: uuid.New()},
		PatientID:       uuid.New(),
		DoctorID:        uuid.New(),
		Date:            time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Time:            "10:10",
		DurationMinutes: 30,
		Status:          model.AppointmentStatusInProgress,
	}
}

func TestOpenForAppointmentRollsBackWhenRecordInsertFails(t *testing.T) {
	db, mock := newMockDB(t)
	apt := startedAppointment()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE appointments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO clinical_records").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	repo := NewClinicalRecordRepository(NewBaseRepository(db))
	_, err := repo.OpenForAppointment(context.Background(), apt, model.AppointmentStatusScheduled,
		&model.ClinicalRecord{AppointmentID: apt.ID, PatientID: apt.PatientID, DoctorID: apt.DoctorID})

	assert.ErrorContains(t, err, "failed to create clinical record")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenForAppointmentStaleStatusWritesNoRecord(t *testing.T) {
	db, mock := newMockDB(t)
	apt := startedAppointment()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE appointments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewClinicalRecordRepository(NewBaseRepository(db))
	_, err := repo.OpenForAppointment(context.Background(), apt, model.AppointmentStatusScheduled,
		&model.ClinicalRecord{AppointmentID: apt.ID})

	assert.ErrorIs(t, err, repository.ErrStaleState)
	require.NoError(t, mock.ExpectationsWereMet())
}
