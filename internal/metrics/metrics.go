// Package metrics defines the Prometheus collectors the api process exports
// for tokenize calls and stake cycles. A nil Registerer yields working but
// unregistered collectors, which keeps tests free of global state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rwavault"

// Tokenize tracks tokenization outcomes.
type Tokenize struct {
	Results  *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewTokenize creates the tokenize collectors on reg.
func NewTokenize(reg prometheus.Registerer) *Tokenize {
	factory := promauto.With(reg)
	return &Tokenize{
		Results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokenize_total",
			Help:      "Tokenize calls by result kind",
		}, []string{"result"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tokenize_duration_seconds",
			Help:      "Wall time of tokenize calls including the mint wait",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
	}
}

// Stake tracks stake monitor cycles.
type Stake struct {
	Cycles  *prometheus.CounterVec
	Skipped prometheus.Counter
	Balance prometheus.Gauge
}

// NewStake creates the stake monitor collectors on reg.
func NewStake(reg prometheus.Registerer) *Stake {
	factory := promauto.With(reg)
	return &Stake{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stake_cycles_total",
			Help:      "Stake cycles by decision and outcome",
		}, []string{"decision", "outcome"}),
		Skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stake_cycles_skipped_total",
			Help:      "Block notifications dropped while a stake cycle was in flight",
		}),
		Balance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stake_wallet_balance",
			Help:      "Last observed custodial wallet balance in base units",
		}),
	}
}
