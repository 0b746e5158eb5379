package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing, which keeps wiring optional in tests and the CLI.
type Metrics struct {
	// Scheduling metrics
	Transitions       *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	SuggestionsServed prometheus.Histogram
	SlotQueries       prometheus.Counter
	DispatchFailures  *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Reminder sweep metrics
	RemindersSent   *prometheus.CounterVec
	RemindersFailed *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Total number of successful appointment lifecycle transitions",
		}, []string{"action", "status"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "rejections_total",
			Help:      "Total number of rejected scheduling operations by reason code",
		}, []string{"action", "code"}),
		SuggestionsServed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "suggestions_returned",
			Help:      "Number of alternative times returned per suggestion request",
			Buckets:   []float64{0, 1, 5, 10, 20, 40, 80},
		}),
		SlotQueries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "slot_queries_total",
			Help:      "Total number of available-slot queries",
		}),
		DispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dispatch_failures_total",
			Help:      "Total number of post-commit side effects that failed",
		}, []string{"kind"}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		RemindersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Total number of reminders delivered",
		}, []string{"channel"}),
		RemindersFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "failed_total",
			Help:      "Total number of reminder delivery attempts that failed",
		}, []string{"channel"}),
	}
}

func (m *Metrics) ObserveTransition(action, status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, status).Inc()
}

func (m *Metrics) ObserveRejection(action, code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(action, code).Inc()
}

func (m *Metrics) ObserveSuggestions(n int) {
	if m == nil {
		return
	}
	m.SuggestionsServed.Observe(float64(n))
}

func (m *Metrics) ObserveSlotQuery() {
	if m == nil {
		return
	}
	m.SlotQueries.Inc()
}

func (m *Metrics) ObserveDispatchFailure(kind string) {
	if m == nil {
		return
	}
	m.DispatchFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveReminder(channel string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RemindersFailed.WithLabelValues(channel).Inc()
		return
	}
	m.RemindersSent.WithLabelValues(channel).Inc()
}
