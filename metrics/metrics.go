package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter: decisões por recurso e resultado (allowed, denied, fail_open)
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total rate limit decisions",
		},
		[]string{"resource", "outcome"},
	)

	// Histogram: latência de cada operação do ledger
	LedgerOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_ledger_op_duration_seconds",
			Help:    "Ledger operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"store", "op"},
	)

	// Counter: falhas do ledger compartilhado
	LedgerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_ledger_errors_total",
			Help: "Total failed ledger operations",
		},
		[]string{"store", "op"},
	)

	// Gauge: requisições em andamento no gateway
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratelimit_gateway_active_requests",
			Help: "Number of requests being served by the gateway",
		},
	)
)
