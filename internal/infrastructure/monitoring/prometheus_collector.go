package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	sessionsActive    *prometheus.GaugeVec
	subscribersActive prometheus.Gauge

	// Counters
	eventsPublishedTotal *prometheus.CounterVec
	eventsDroppedTotal   *prometheus.CounterVec
	reconnectsTotal      *prometheus.CounterVec
	segmentRequestsTotal *prometheus.CounterVec

	// Histograms
	segmentRequestDuration prometheus.Histogram
	vendorCallDuration     *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "homehub_provider_sessions_active",
			Help: "Live vendor sessions per provider",
		}, []string{"provider"}),

		subscribersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "homehub_relay_subscribers_active",
			Help: "Live event relay subscribers",
		}),

		eventsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homehub_relay_events_published_total",
			Help: "Events published to the relay",
		}, []string{"provider", "type"}),

		eventsDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homehub_relay_events_dropped_total",
			Help: "Events dropped because a subscriber queue was full",
		}, []string{"provider"}),

		reconnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homehub_reconnects_total",
			Help: "Startup reconnection attempts by outcome",
		}, []string{"provider", "outcome"}),

		segmentRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homehub_segment_requests_total",
			Help: "Live stream segment requests by status code",
		}, []string{"status"}),

		segmentRequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "homehub_segment_request_duration_seconds",
			Help:    "Duration of segment requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		vendorCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homehub_vendor_call_duration_seconds",
			Help:    "Duration of vendor cloud calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider", "operation"}),
	}
}

// SessionOpened / SessionClosed implement the provider connection
// metrics hook.
func (p *PrometheusCollector) SessionOpened(provider string) {
	p.sessionsActive.WithLabelValues(provider).Inc()
}

func (p *PrometheusCollector) SessionClosed(provider string) {
	p.sessionsActive.WithLabelValues(provider).Dec()
}

// EventPublished, EventDropped, SubscriberAdded and SubscriberRemoved
// implement the relay metrics hook.
func (p *PrometheusCollector) EventPublished(provider, eventType string) {
	p.eventsPublishedTotal.WithLabelValues(provider, eventType).Inc()
}

func (p *PrometheusCollector) EventDropped(provider string) {
	p.eventsDroppedTotal.WithLabelValues(provider).Inc()
}

func (p *PrometheusCollector) SubscriberAdded() {
	p.subscribersActive.Inc()
}

func (p *PrometheusCollector) SubscriberRemoved() {
	p.subscribersActive.Dec()
}

func (p *PrometheusCollector) RecordReconnect(provider, outcome string) {
	p.reconnectsTotal.WithLabelValues(provider, outcome).Inc()
}

func (p *PrometheusCollector) RecordSegmentRequest(status string, duration time.Duration) {
	p.segmentRequestsTotal.WithLabelValues(status).Inc()
	p.segmentRequestDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordVendorCall(provider, operation string, duration time.Duration) {
	p.vendorCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}
