package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay metrics, registered on the default registry and exposed via /metrics.
var (
	metricConnectsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "connections_admitted_total",
		Help:      "Desktop transports admitted after successful authentication.",
	})

	metricConnectsReplaced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "connections_replaced_total",
		Help:      "Prior transports closed because a newer connection took over.",
	})

	metricAsksForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "asks_forwarded_total",
		Help:      "Commands accepted and forwarded over a transport.",
	})

	metricAsksOffline = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "asks_offline_total",
		Help:      "Commands rejected immediately because no transport was attached.",
	})

	metricRepliesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "replies_delivered_total",
		Help:      "Replies matched to a pending request and handed to delivery.",
	})

	metricTimeoutsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "timeouts_fired_total",
		Help:      "Pending requests resolved by the response timeout.",
	})

	metricDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "delivery_failures_total",
		Help:      "Reply or timeout deliveries that reported an error.",
	})

	metricLiveActors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "live_actors",
		Help:      "Relay actors currently held by the registry.",
	})
)
