// Package metrics exposes the bot's Prometheus instrumentation. All
// collectors are registered on the default registry; the debug server
// serves them on /metrics when enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gtrbot",
		Subsystem: "stream",
		Name:      "messages_total",
		Help:      "Raw websocket messages received.",
	})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gtrbot",
		Subsystem: "stream",
		Name:      "reconnects_total",
		Help:      "Websocket reconnect attempts.",
	})

	EventsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gtrbot",
		Subsystem: "relay",
		Name:      "events_discarded_total",
		Help:      "Events dropped before delivery, by reason.",
	}, []string{"reason"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gtrbot",
		Subsystem: "relay",
		Name:      "deliveries_total",
		Help:      "Announcement delivery attempts, by outcome.",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gtrbot",
		Subsystem: "relay",
		Name:      "queue_depth",
		Help:      "Events waiting in the ingestion queue.",
	})

	DedupSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gtrbot",
		Subsystem: "relay",
		Name:      "dedup_size",
		Help:      "Record ids tracked by the duplicate filter.",
	})

	LookupFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gtrbot",
		Subsystem: "gtr",
		Name:      "lookup_fallbacks_total",
		Help:      "Metadata lookups that fell back to placeholder values.",
	}, []string{"kind"})

	LookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gtrbot",
		Subsystem: "gtr",
		Name:      "lookup_duration_seconds",
		Help:      "GTR API lookup latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
