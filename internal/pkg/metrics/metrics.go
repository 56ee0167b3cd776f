package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Payroll run transitions by event and result (applied, rejected reason code)
	PayrollTransitions *prometheus.CounterVec

	// Attendance evaluations by resulting status
	AttendanceEvaluations *prometheus.CounterVec

	// Evaluation latency including persistence and ledger sync
	EvaluateLatency prometheus.Histogram

	// Aggregated payroll lines by outcome
	AggregatedLines *prometheus.CounterVec

	// Config entity status changes by kind and target status
	ConfigStatusChanges *prometheus.CounterVec

	// Notification deliveries by result
	NotificationDeliveries *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PayrollTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hris_payroll_run_transitions_total",
			Help: "Payroll run transition attempts by event and result",
		}, []string{"event", "result"}),

		AttendanceEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hris_attendance_evaluations_total",
			Help: "Attendance record evaluations by resulting status",
		}, []string{"status"}),

		EvaluateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hris_attendance_evaluate_duration_seconds",
			Help:    "Duration of a single attendance evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		AggregatedLines: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hris_payroll_lines_aggregated_total",
			Help: "Payroll line aggregations by outcome",
		}, []string{"outcome"}),

		ConfigStatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hris_payroll_config_status_changes_total",
			Help: "Payroll configuration status changes by kind and status",
		}, []string{"kind", "status"}),

		NotificationDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hris_notification_deliveries_total",
			Help: "Notification delivery attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncTransition(event, result string) {
	if m != nil {
		m.PayrollTransitions.WithLabelValues(event, result).Inc()
	}
}

func (m *Metrics) IncEvaluation(status string) {
	if m != nil {
		m.AttendanceEvaluations.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncAggregatedLine(outcome string) {
	if m != nil {
		m.AggregatedLines.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncConfigStatusChange(kind, status string) {
	if m != nil {
		m.ConfigStatusChanges.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) IncNotificationDelivery(result string) {
	if m != nil {
		m.NotificationDeliveries.WithLabelValues(result).Inc()
	}
}
