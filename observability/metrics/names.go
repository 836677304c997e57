package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NamesMetrics tracks registry state transitions.
type NamesMetrics struct {
	operations  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lockedTotal prometheus.Gauge
	feesTotal   prometheus.Gauge
	stateHeight prometheus.Gauge
}

var (
	namesOnce     sync.Once
	namesRegistry *NamesMetrics
)

// Names returns the lazily registered registry metrics.
func Names() *NamesMetrics {
	namesOnce.Do(func() {
		namesRegistry = &NamesMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnr",
				Subsystem: "names",
				Name:      "operations_total",
				Help:      "Count of applied registry operations by kind.",
			}, []string{"op"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vnr",
				Subsystem: "names",
				Name:      "failures_total",
				Help:      "Count of rejected registry operations by kind and reason.",
			}, []string{"op", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vnr",
				Subsystem: "names",
				Name:      "operation_duration_seconds",
				Help:      "Latency of registry operations including the state commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			lockedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vnr",
				Subsystem: "names",
				Name:      "locked_wei",
				Help:      "Collateral currently held in the registry vault.",
			}),
			feesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vnr",
				Subsystem: "names",
				Name:      "fees_collected_wei",
				Help:      "Registration and renewal fees collected by the vault.",
			}),
			stateHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vnr",
				Subsystem: "names",
				Name:      "state_height",
				Help:      "Number of committed state transitions.",
			}),
		}
		prometheus.MustRegister(
			namesRegistry.operations,
			namesRegistry.failures,
			namesRegistry.latency,
			namesRegistry.lockedTotal,
			namesRegistry.feesTotal,
			namesRegistry.stateHeight,
		)
	})
	return namesRegistry
}

// RecordSuccess records an applied operation and its latency.
func (m *NamesMetrics) RecordSuccess(op string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordFailure records a rejected operation.
func (m *NamesMetrics) RecordFailure(op, reason string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if reason == "" {
		reason = "internal"
	}
	m.failures.WithLabelValues(op, reason).Inc()
}

// SetTotals publishes the vault accounting gauges. Values beyond float64
// precision are approximated.
func (m *NamesMetrics) SetTotals(locked, fees *big.Int) {
	if m == nil {
		return
	}
	m.lockedTotal.Set(bigToFloat(locked))
	m.feesTotal.Set(bigToFloat(fees))
}

// SetHeight publishes the committed transition count.
func (m *NamesMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.stateHeight.Set(float64(height))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
