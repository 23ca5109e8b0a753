package audit

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the audit pipeline counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	EntriesRecorded *prometheus.CounterVec
	RecordFailures  *prometheus.CounterVec
	TriggerSkipped  *prometheus.CounterVec
	EntriesPurged   prometheus.Counter
}

// NewMetrics creates and registers the audit metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		EntriesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_audit_entries_recorded_total",
				Help: "Audit entries persisted, by entity type and action",
			},
			[]string{"entity_type", "action"},
		),
		RecordFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_audit_record_failures_total",
				Help: "Audit entries that could not be recorded, by reason",
			},
			[]string{"reason"},
		),
		TriggerSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "praxis_audit_trigger_skipped_total",
				Help: "Change events that produced no audit entry, by collection and reason",
			},
			[]string{"collection", "reason"},
		),
		EntriesPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "praxis_audit_entries_purged_total",
				Help: "Audit entries removed by retention cleanup",
			},
		),
	}

	registry.MustRegister(
		m.EntriesRecorded,
		m.RecordFailures,
		m.TriggerSkipped,
		m.EntriesPurged,
	)

	return m
}

func (m *Metrics) recorded(entityType, action string) {
	if m == nil {
		return
	}
	m.EntriesRecorded.WithLabelValues(entityType, action).Inc()
}

func (m *Metrics) failed(reason string) {
	if m == nil {
		return
	}
	m.RecordFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) skipped(collection, reason string) {
	if m == nil {
		return
	}
	m.TriggerSkipped.WithLabelValues(collection, reason).Inc()
}

func (m *Metrics) purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.EntriesPurged.Add(float64(n))
}
