package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("accept", "SCHEDULED")
		m.ObserveRejection("accept", "SLOT_TAKEN")
		m.ObserveSuggestions(3)
		m.ObserveSlotQuery()
		m.ObserveDispatchFailure("audit.recorded")
		m.ObserveReminder("email", nil)
	})
}

func TestNewMetricsRegistersPerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("scheduling", reg)

	m.ObserveTransition("accept", "SCHEDULED")
	m.ObserveRejection("request", "SLOT_TAKEN")
	m.ObserveReminder("email", errors.New("smtp down"))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["scheduling_appointments_transitions_total"])
	assert.True(t, names["scheduling_appointments_rejections_total"])
	assert.True(t, names["scheduling_reminders_failed_total"])

	// a second registry must not collide with the first
	assert.NotPanics(t, func() { NewMetrics("scheduling", prometheus.NewRegistry()) })
}
