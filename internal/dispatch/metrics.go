package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_deliveries_total",
			Help: "Deliveries by channel and terminal attempt outcome",
		},
		[]string{"channel", "outcome"},
	)

	deliveriesDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_deliveries_deferred_total",
			Help: "Deliveries pushed back into the pipeline without consuming an attempt",
		},
		[]string{"channel", "reason"},
	)

	deliveriesRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_delivery_retries_total",
			Help: "Transient delivery failures that scheduled a retry",
		},
		[]string{"channel"},
	)
)
