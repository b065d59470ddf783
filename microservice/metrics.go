package microservice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// started counts the total number of microservices that entered Run.
	started = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "microservice_started",
		Help: "The total number of microservices started",
	})

	// stopped counts the total number of microservices whose loop exited.
	stopped = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "microservice_stopped",
		Help: "The total number of microservices stopped",
	})

	alive = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "microservice_alive",
		Help: "The number of microservices currently running",
	}, []string{"subsystem", "actor"})

	// panics counts handler panics that were turned into crash broadcasts.
	panics = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "microservice_panic",
		Help: "The total number of handler panics recovered",
	}, []string{"subsystem", "actor"})

	queued = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "microservice_enqueued_messages",
		Help: "The number of messages waiting in the mailbox",
	}, []string{"subsystem", "actor"})

	processedMessages = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "microservice_processed_messages",
		Help: "The total number of messages dispatched to a handler",
	}, []string{"subsystem", "actor"})

	unhandledMessages = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "microservice_unhandled_messages",
		Help: "The total number of messages received without a matching handler",
	}, []string{"subsystem", "actor"})

	processingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{ //nolint:gochecknoglobals
		Name: "microservice_processing_time",
		Help: "The time spent in a handler",
		Buckets: []float64{
			0.0001, // 100µs
			0.001,  // 1ms
			0.01,   // 10ms
			0.1,    // 100ms
			1,      // 1s
			10,     // 10s
		},
	}, []string{"subsystem", "actor"})
)
