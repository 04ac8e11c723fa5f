package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventsMetrics tracks the broadcast hub.
type EventsMetrics struct {
	observers prometheus.Gauge
	published *prometheus.CounterVec
	dropped   prometheus.Counter
}

// NewEventsMetrics registers the event hub metrics on the provided registerer.
func NewEventsMetrics(reg prometheus.Registerer) *EventsMetrics {
	if reg == nil {
		return &EventsMetrics{}
	}
	observers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "event_observers",
		Help: "Currently connected event observers.",
	})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Events published by type.",
	}, []string{"type"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "event_observers_dropped_total",
		Help: "Observers disconnected for falling behind.",
	})
	reg.MustRegister(observers, published, dropped)
	return &EventsMetrics{
		observers: observers,
		published: published,
		dropped:   dropped,
	}
}

// ObserverConnected increments the connected observer gauge.
func (e *EventsMetrics) ObserverConnected() {
	if e == nil || e.observers == nil {
		return
	}
	e.observers.Inc()
}

// ObserverDisconnected decrements the connected observer gauge.
func (e *EventsMetrics) ObserverDisconnected() {
	if e == nil || e.observers == nil {
		return
	}
	e.observers.Dec()
}

// IncPublished counts one published event of the given type.
func (e *EventsMetrics) IncPublished(eventType string) {
	if e == nil || e.published == nil {
		return
	}
	e.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDropped counts an observer dropped for slow consumption.
func (e *EventsMetrics) IncDropped() {
	if e == nil || e.dropped == nil {
		return
	}
	e.dropped.Inc()
}
