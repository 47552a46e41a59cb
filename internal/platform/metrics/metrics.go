package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	RoomsActive       prometheus.Gauge
	SubscribersActive prometheus.Gauge
	SubscribersShed   prometheus.Counter
	EventsPublished   prometheus.Counter
	EventsDelivered   prometheus.Counter
	PublishDuration   prometheus.Histogram
	HTTPDuration      *prometheus.HistogramVec
	AuditDropped      prometheus.Counter
}

// New creates all metrics and registers them on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "duffel_rooms_active",
			Help: "Number of rooms currently held open by the hub",
		}),
		SubscribersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "duffel_subscribers_active",
			Help: "Number of live room subscriptions",
		}),
		SubscribersShed: factory.NewCounter(prometheus.CounterOpts{
			Name: "duffel_subscribers_shed_total",
			Help: "Subscriptions dropped because their event queue overflowed",
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "duffel_events_published_total",
			Help: "Change events assigned a sequence number",
		}),
		EventsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "duffel_events_delivered_total",
			Help: "Change events enqueued to subscribers",
		}),
		PublishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "duffel_publish_duration_seconds",
			Help:    "Time spent inside the room critical section per publish",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duffel_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "duffel_audit_dropped_total",
			Help: "Audit entries dropped because the journal buffer was full",
		}),
	}
}

// ObservePublish records one publish critical section.
func (m *Metrics) ObservePublish(d time.Duration) {
	m.PublishDuration.Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
