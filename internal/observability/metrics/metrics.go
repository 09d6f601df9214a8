package metrics

import "github.com/prometheus/client_golang/prometheus"

// BatchMetrics exposes counters for the batch flows: reconciliation passes,
// external sync runs and notification delivery.
type BatchMetrics struct {
	reconcilePatients   *prometheus.CounterVec
	reconcilePromotions prometheus.Counter
	syncRecords         *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
}

func NewBatchMetrics(reg prometheus.Registerer) *BatchMetrics {
	m := &BatchMetrics{
		reconcilePatients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinebilan",
			Subsystem: "reconcile",
			Name:      "patients_total",
			Help:      "Patients examined by the reconciliation pass",
		}, []string{"due"}),
		reconcilePromotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kinebilan",
			Subsystem: "reconcile",
			Name:      "promotions_total",
			Help:      "Appointments promoted to bilan by the reconciliation pass",
		}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinebilan",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Doctolib feed records processed, by outcome",
		}, []string{"outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinebilan",
			Subsystem: "notifications",
			Name:      "processed_total",
			Help:      "Notifications settled by the processor",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reconcilePatients, m.reconcilePromotions, m.syncRecords, m.notificationsTotal)
	return m
}

// ObserveReconcilePatient counts one examined patient.
func (m *BatchMetrics) ObserveReconcilePatient(due bool) {
	if m == nil {
		return
	}
	label := "false"
	if due {
		label = "true"
	}
	m.reconcilePatients.WithLabelValues(label).Inc()
}

// ObservePromotion counts one appointment promoted to bilan.
func (m *BatchMetrics) ObservePromotion() {
	if m == nil {
		return
	}
	m.reconcilePromotions.Inc()
}

// ObserveSyncRecord counts one processed feed record by outcome
// (created, updated, cancelled, error).
func (m *BatchMetrics) ObserveSyncRecord(outcome string) {
	if m == nil {
		return
	}
	m.syncRecords.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts one settled notification.
func (m *BatchMetrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}
