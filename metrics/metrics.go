// Package metrics exposes the Prometheus collectors the worker
// dispatch loop and publisher report against, and the HTTP handler
// that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DeliveriesReceived counts deliveries handed to a dispatch goroutine,
// labeled by queue.
var DeliveriesReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warren_deliveries_received_total",
		Help: "Deliveries handed to a worker dispatch goroutine.",
	},
	[]string{"queue"},
)

// DeliveriesAcked counts deliveries whose handler returned without error.
var DeliveriesAcked = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warren_deliveries_acked_total",
		Help: "Deliveries acknowledged after a successful handler call.",
	},
	[]string{"queue"},
)

// DeliveriesNacked counts deliveries whose handler returned an error.
var DeliveriesNacked = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warren_deliveries_nacked_total",
		Help: "Deliveries negatively acknowledged after a failed handler call.",
	},
	[]string{"queue"},
)

// HandlerDuration measures how long a descriptor's handler took to run.
var HandlerDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "warren_handler_duration_seconds",
		Help:    "Duration of a single handler invocation.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	},
	[]string{"queue"},
)

// PublishLatency measures how long a Publisher.Publish call took;
// PublishWait does not report to it.
var PublishLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "warren_publish_latency_seconds",
		Help:    "Duration of a publish call, including confirm wait when enabled.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	},
	[]string{"exchange"},
)

// ReconnectsTotal counts broker reconnection events observed through
// the amqp adapter's Ready notifications.
var ReconnectsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "warren_reconnects_total",
		Help: "Broker connection re-establishments observed by the adapter.",
	},
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
