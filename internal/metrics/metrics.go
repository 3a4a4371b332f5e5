// Package metrics registers the process-wide Prometheus collectors for the
// ingestion pipeline, the live fanout bus, and the command dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "tracker_"

// Ingest outcomes.
const (
	ResultStored      = "stored"
	ResultParseError  = "parse_error"
	ResultRejected    = "rejected"
	ResultStoreFailed = "store_failed"
)

// Command outcomes.
const (
	ResultPublished     = "published"
	ResultInvalid       = "invalid"
	ResultPublishFailed = "publish_failed"
)

var (
	IngestMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "ingest_messages_total",
		Help: "Inbound telemetry messages by outcome",
	}, []string{"result"})

	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "broadcasts_total",
		Help: "Position fixes pushed to the live fanout bus",
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "broadcast_dropped_total",
		Help: "Broadcast messages dropped because a viewer session could not keep up",
	})

	ViewerSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: metricPrefix + "viewer_sessions",
		Help: "Currently connected viewer sessions",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "commands_total",
		Help: "Device commands by outcome",
	}, []string{"result"})

	StoreAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: metricPrefix + "store_available",
		Help: "1 when the persistence store is reachable, 0 while reconnecting",
	})
)
