package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the consent core.
type Metrics struct {
	ChoicesTotal       *prometheus.CounterVec
	ActiveCategories   *prometheus.GaugeVec
	NotificationsTotal prometheus.Counter
	SubscriberPanics   prometheus.Counter

	ScriptInstallsTotal   *prometheus.CounterVec
	VendorSignalsTotal    *prometheus.CounterVec
	EventsDispatchedTotal *prometheus.CounterVec
	EventsQueuedTotal     *prometheus.CounterVec
	EventsDroppedTotal    *prometheus.CounterVec
	QueueDepth            *prometheus.GaugeVec
	QueueFlushesTotal     *prometheus.CounterVec
}

// New registers and returns consent metrics collectors.
func New() *Metrics {
	return &Metrics{
		ChoicesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_choices_total",
			Help: "Total number of explicit consent choices, labeled by action",
		}, []string{"action"}),
		ActiveCategories: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consentgate_active_categories",
			Help: "Whether each consent category is currently granted (1) or not (0)",
		}, []string{"category"}),
		NotificationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentgate_notifications_total",
			Help: "Total number of subscriber notification fan-outs",
		}),
		SubscriberPanics: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentgate_subscriber_panics_total",
			Help: "Total number of subscriber callbacks that panicked during notification",
		}),
		ScriptInstallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_script_installs_total",
			Help: "Total number of vendor script installs, labeled by vendor",
		}, []string{"vendor"}),
		VendorSignalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_vendor_signals_total",
			Help: "Total number of grant/revoke signals sent to vendors",
		}, []string{"vendor", "signal"}),
		EventsDispatchedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_events_dispatched_total",
			Help: "Total number of tracking events dispatched to vendors",
		}, []string{"vendor"}),
		EventsQueuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_events_queued_total",
			Help: "Total number of tracking events queued before vendor readiness",
		}, []string{"vendor"}),
		EventsDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_events_dropped_total",
			Help: "Total number of queued events discarded on consent revocation",
		}, []string{"vendor"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consentgate_queue_depth",
			Help: "Current number of tracking events waiting for vendor readiness",
		}, []string{"vendor"}),
		QueueFlushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_queue_flushes_total",
			Help: "Total number of queue drains performed on vendor readiness",
		}, []string{"vendor"}),
	}
}

func (m *Metrics) IncrementChoice(action string) {
	m.ChoicesTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) SetCategoryActive(category string, granted bool) {
	v := 0.0
	if granted {
		v = 1.0
	}
	m.ActiveCategories.WithLabelValues(category).Set(v)
}

func (m *Metrics) IncrementNotifications() {
	m.NotificationsTotal.Inc()
}

func (m *Metrics) IncrementSubscriberPanics() {
	m.SubscriberPanics.Inc()
}

func (m *Metrics) IncrementScriptInstalls(vendor string) {
	m.ScriptInstallsTotal.WithLabelValues(vendor).Inc()
}

func (m *Metrics) IncrementVendorSignal(vendor, signal string) {
	m.VendorSignalsTotal.WithLabelValues(vendor, signal).Inc()
}

func (m *Metrics) IncrementEventsDispatched(vendor string) {
	m.EventsDispatchedTotal.WithLabelValues(vendor).Inc()
}

func (m *Metrics) IncrementEventsQueued(vendor string) {
	m.EventsQueuedTotal.WithLabelValues(vendor).Inc()
}

func (m *Metrics) AddEventsDropped(vendor string, n int) {
	m.EventsDroppedTotal.WithLabelValues(vendor).Add(float64(n))
}

func (m *Metrics) SetQueueDepth(vendor string, depth int) {
	m.QueueDepth.WithLabelValues(vendor).Set(float64(depth))
}

func (m *Metrics) IncrementQueueFlushes(vendor string) {
	m.QueueFlushesTotal.WithLabelValues(vendor).Inc()
}
