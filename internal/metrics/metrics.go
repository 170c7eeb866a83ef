// Package metrics exposes Prometheus metrics and the /healthz probe of the
// trader process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of the decision loop.
type Metrics struct {
	CyclesTotal    prometheus.Counter
	CycleDur       prometheus.Histogram
	CandleLag      prometheus.Gauge
	CacheEvictions prometheus.Counter

	// Stream
	WSReconnects  prometheus.Counter
	DroppedFrames prometheus.Counter

	// Indicators, labelled by line: upper, mean, lower
	Band           *prometheus.GaugeVec
	Oscillator     prometheus.Gauge
	RelativeVolume prometheus.Gauge
	RiskRatio      prometheus.Gauge

	// Decisions and orders
	DecisionsTotal *prometheus.CounterVec // labels: direction, reason
	OrdersTotal    *prometheus.CounterVec // labels: kind, result
	LedgerFailures *prometheus.CounterVec // labels: kind
	Lifecycles     *prometheus.CounterVec // labels: state

	// Redis sequencer breaker: 0=closed, 1=open, 2=half-open
	RedisBreakerState prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandtrader_cycles_total",
			Help: "Decision cycles run (one per closed candle)",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bandtrader_cycle_duration_seconds",
			Help:    "Decision cycle latency including order placement",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandtrader_candle_lag_seconds",
			Help: "Delay between candle close and the start of its cycle",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandtrader_cache_evictions_total",
			Help: "Candles evicted from the rolling cache",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandtrader_ws_reconnects_total",
			Help: "Kline stream reconnections",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandtrader_ws_dropped_frames_total",
			Help: "Undecodable kline stream frames",
		}),
		Band: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandtrader_band",
			Help: "Latest Bollinger band values",
		}, []string{"line"}),
		Oscillator: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandtrader_oscillator",
			Help: "Latest RSI value",
		}),
		RelativeVolume: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandtrader_relative_volume",
			Help: "Latest volume relative to its recent mean",
		}),
		RiskRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandtrader_portfolio_risk_pct",
			Help: "Latest portfolio risk ratio in percent",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_decisions_total",
			Help: "Signal decisions by direction and reason",
		}, []string{"direction", "reason"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_orders_total",
			Help: "Orders submitted by kind and result",
		}, []string{"kind", "result"}),
		LedgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_ledger_failures_total",
			Help: "Ledger writes that failed after the order was live",
		}, []string{"kind"}),
		Lifecycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_lifecycles_total",
			Help: "Order lifecycles by terminal state",
		}, []string{"state"}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandtrader_redis_breaker_state",
			Help: "Redis sequencer breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.CandleLag,
		m.CacheEvictions,
		m.WSReconnects,
		m.DroppedFrames,
		m.Band,
		m.Oscillator,
		m.RelativeVolume,
		m.RiskRatio,
		m.DecisionsTotal,
		m.OrdersTotal,
		m.LedgerFailures,
		m.Lifecycles,
		m.RedisBreakerState,
	)
	return m
}

// OrderResult returns the result label for an order attempt.
func OrderResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
