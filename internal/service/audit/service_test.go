package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
)

func TestRecord(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Audit())
	user, apt := uuid.New(), uuid.New()

	err := svc.Record(context.Background(), user, "accept", model.AuditResourceAppointment, apt,
		map[string]interface{}{"from": "PENDING", "to": "SCHEDULED"})
	require.NoError(t, err)

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, user, logs[0].UserID)
	assert.Equal(t, apt, logs[0].ResourceID)
	assert.Equal(t, "accept", logs[0].Action)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(logs[0].Metadata, &meta))
	assert.Equal(t, "SCHEDULED", meta["to"])
}
