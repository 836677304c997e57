package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking registry notifications and
// their downstream delivery.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnr",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of published notifications segmented by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnr",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Notifications dropped because a subscriber was too slow.",
			}, []string{"sink"}),
			deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnr",
				Subsystem: "events",
				Name:      "deliveries_total",
				Help:      "Downstream delivery attempts segmented by sink and outcome.",
			}, []string{"sink", "outcome"}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.dropped, eventRegistry.deliveries)
	})
	return eventRegistry
}

// RecordPublished increments the counter for the supplied event type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.published.WithLabelValues(normalized).Inc()
}

// RecordDropped counts a notification a subscriber could not accept.
func (m *eventMetrics) RecordDropped(sink string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(sinkLabel(sink)).Inc()
}

// RecordDelivery counts a delivery attempt to an external sink such as the
// indexer or a webhook endpoint.
func (m *eventMetrics) RecordDelivery(sink string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.deliveries.WithLabelValues(sinkLabel(sink), outcome).Inc()
}

func sinkLabel(sink string) string {
	if strings.TrimSpace(sink) == "" {
		return "unknown"
	}
	return sink
}
