// Package metrics exposes Prometheus collectors for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnipesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_snipes_total",
		Help: "Buy attempts by result (success, failed, denied).",
	}, []string{"result"})

	SellsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_sells_total",
		Help: "Sell attempts by result (success, failed).",
	}, []string{"result"})

	TierExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_tier_executions_total",
		Help: "Completed tier sells by tier index.",
	}, []string{"tier"})

	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_breaker_open",
		Help: "1 when the safety breaker is open, 0 when closed.",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_open_positions",
		Help: "Number of positions currently monitored.",
	})

	AbandonedPositions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_abandoned_positions_total",
		Help: "Positions abandoned after forced liquidation failed.",
	})

	ExecutionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sniper_execution_latency_seconds",
		Help:    "Order submission latency by direction.",
		Buckets: prometheus.DefBuckets,
	}, []string{"direction"})

	PriceCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sniper_price_check_failures_total",
		Help: "Monitoring cycles skipped because no price was available.",
	})
)
