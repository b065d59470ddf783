package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the message bus. Every metric carries a "bus" label
// (see WithName); per-type metrics also carry the Go type of the message.

var (
	registeredActors = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "bus_registered_actors",
		Help: "The number of actors that currently have a mailbox",
	}, []string{"bus"})

	pendingFutures = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "bus_pending_futures",
		Help: "The number of routed events that have not been completed",
	}, []string{"bus"})

	sentEvents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "bus_events_sent_total",
		Help: "The total number of events routed to a subscriber",
	}, []string{"bus", "type"})

	unroutableEvents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "bus_events_unroutable_total",
		Help: "The total number of events sent while nobody was subscribed",
	}, []string{"bus", "type"})

	resentEvents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "bus_events_resent_total",
		Help: "The total number of sends rejected because the event instance was already routed",
	}, []string{"bus", "type"})

	completedEvents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "bus_events_completed_total",
		Help: "The total number of events whose future was resolved",
	}, []string{"bus"})

	sentBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "bus_broadcasts_sent_total",
		Help: "The total number of broadcasts sent",
	}, []string{"bus", "type"})

	broadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "bus_broadcast_deliveries_total",
		Help: "The total number of broadcast copies enqueued",
	}, []string{"bus", "type"})

	droppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "bus_dropped_messages_total",
		Help: "The total number of queued messages discarded by Unregister",
	}, []string{"bus"})
)
