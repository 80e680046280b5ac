package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pennyrush_outbox_events_published_total",
		Help: "Outbox events relayed to the bus, by type and status.",
	}, []string{"event_type", "status"})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pennyrush_outbox_batch_size",
		Help:    "Number of events processed per relay batch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	outboxLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pennyrush_outbox_pending",
		Help: "Unsent events sitting in the outbox table.",
	})
)
