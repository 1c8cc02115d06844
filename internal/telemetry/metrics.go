package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_payments_enqueued_total",
		Help: "Payments accepted at ingress and published to the payments channel.",
	})

	PaymentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_payment_outcomes_total",
		Help: "Terminal dispatch states reached by payment jobs.",
	}, []string{"state"})

	ProcessorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_processor_requests_total",
		Help: "Calls made to payment processors by result.",
	}, []string{"processor", "result"})

	ProcessorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_processor_request_duration_seconds",
		Help:    "Latency of payment processor calls.",
		Buckets: []float64{.005, .01, .025, .05, .1, .2, .3, .5, 1},
	}, []string{"processor"})

	StoreSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_store_save_failures_total",
		Help: "Payments accepted by a processor whose record could not be written.",
	})
)

// RegisterPoolGauge exposes the number of checked-out connections of a pool.
func RegisterPoolGauge(name string, inUse func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "gateway_pool_connections_in_use",
		Help:        "Connections currently checked out of a pool.",
		ConstLabels: prometheus.Labels{"pool": name},
	}, func() float64 { return float64(inUse()) }))
}
