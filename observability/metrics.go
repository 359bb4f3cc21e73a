package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics
)

// SettlementMetrics captures the epoch settlement engine instrumentation.
type SettlementMetrics struct {
	steps       *prometheus.CounterVec
	errors      *prometheus.CounterVec
	ledgerCalls *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	solutions   *prometheus.CounterVec
	halted      *prometheus.GaugeVec
	paused      *prometheus.GaugeVec
	phase       *prometheus.GaugeVec
	epochID     *prometheus.GaugeVec
}

// Settlement returns the lazily initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			steps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochd",
				Subsystem: "coordinator",
				Name:      "steps_total",
				Help:      "Coordinator passes segmented by pool, observed phase and outcome.",
			}, []string{"pool", "phase", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochd",
				Subsystem: "coordinator",
				Name:      "errors_total",
				Help:      "Coordinator failures segmented by pool and reason.",
			}, []string{"pool", "reason"}),
			ledgerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "epochd",
				Subsystem: "ledger",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for ledger calls including retries.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"pool", "operation", "outcome"}),
			retries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochd",
				Subsystem: "ledger",
				Name:      "retries_total",
				Help:      "Transient ledger faults that were retried.",
			}, []string{"pool", "operation"}),
			solutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochd",
				Subsystem: "solver",
				Name:      "solutions_total",
				Help:      "Solver results segmented by pool and solution status.",
			}, []string{"pool", "status"}),
			halted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "epochd",
				Subsystem: "coordinator",
				Name:      "halted",
				Help:      "Set to 1 while a pool is halted on a fatal error.",
			}, []string{"pool"}),
			paused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "epochd",
				Subsystem: "coordinator",
				Name:      "paused",
				Help:      "Set to 1 while an operator has paused a pool.",
			}, []string{"pool"}),
			phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "epochd",
				Subsystem: "epoch",
				Name:      "phase",
				Help:      "Last observed epoch phase ordinal per pool.",
			}, []string{"pool"}),
			epochID: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "epochd",
				Subsystem: "epoch",
				Name:      "id",
				Help:      "Last observed epoch id per pool.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			settlementRegistry.steps,
			settlementRegistry.errors,
			settlementRegistry.ledgerCalls,
			settlementRegistry.retries,
			settlementRegistry.solutions,
			settlementRegistry.halted,
			settlementRegistry.paused,
			settlementRegistry.phase,
			settlementRegistry.epochID,
		)
	})
	return settlementRegistry
}

// RecordStep counts one coordinator pass.
func (m *SettlementMetrics) RecordStep(pool, phase, outcome string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(label(pool), label(phase), label(outcome)).Inc()
}

// RecordError increments the failure counter. Reasons should be stable
// strings such as "ledger_unavailable" or "stale_state".
func (m *SettlementMetrics) RecordError(pool, reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(label(pool), label(reason)).Inc()
}

// ObserveLedgerCall records the latency of a ledger call.
func (m *SettlementMetrics) ObserveLedgerCall(pool, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ledgerCalls.WithLabelValues(label(pool), label(operation), outcome).Observe(d.Seconds())
}

// RecordRetry counts a retried ledger call.
func (m *SettlementMetrics) RecordRetry(pool, operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(label(pool), label(operation)).Inc()
}

// RecordSolution counts a solver result.
func (m *SettlementMetrics) RecordSolution(pool, status string) {
	if m == nil {
		return
	}
	m.solutions.WithLabelValues(label(pool), label(status)).Inc()
}

// SetHalted toggles the halted gauge.
func (m *SettlementMetrics) SetHalted(pool string, halted bool) {
	if m == nil {
		return
	}
	m.halted.WithLabelValues(label(pool)).Set(boolGauge(halted))
}

// SetPaused toggles the paused gauge.
func (m *SettlementMetrics) SetPaused(pool string, paused bool) {
	if m == nil {
		return
	}
	m.paused.WithLabelValues(label(pool)).Set(boolGauge(paused))
}

// RecordEpoch publishes the last observed epoch id and phase ordinal.
func (m *SettlementMetrics) RecordEpoch(pool string, epochID uint64, phase int) {
	if m == nil {
		return
	}
	m.epochID.WithLabelValues(label(pool)).Set(float64(epochID))
	m.phase.WithLabelValues(label(pool)).Set(float64(phase))
}

// Halted returns the halted gauge for the pool. Tests use it with testutil.
func (m *SettlementMetrics) Halted(pool string) prometheus.Gauge {
	return m.halted.WithLabelValues(label(pool))
}

// Errors returns the error counter for the pool and reason.
func (m *SettlementMetrics) Errors(pool, reason string) prometheus.Counter {
	return m.errors.WithLabelValues(label(pool), label(reason))
}

// Retries returns the retry counter for the pool and operation.
func (m *SettlementMetrics) Retries(pool, operation string) prometheus.Counter {
	return m.retries.WithLabelValues(label(pool), label(operation))
}

func label(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
