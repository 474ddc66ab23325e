// Package metrics exposes Prometheus instrumentation for the gate.
//
// The collector owns its own registry so embedding applications never
// collide with the default registry. All recording methods are safe for
// concurrent use and become no-ops when metrics are disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls collector behavior.
type Config struct {
	// Enabled toggles all recording. A disabled collector still constructs
	// its metric instances but records nothing.
	Enabled bool

	// Namespace prefixes every metric name. Defaults to "saturn".
	Namespace string
}

// Collector registers and records all gate metrics.
//
// Example:
//
//	collector := metrics.NewCollector(metrics.Config{Enabled: true})
//	collector.RecordDecision("blocked", "high", 3*time.Millisecond)
//	http.Handle("/metrics", collector.Handler())
type Collector struct {
	config   Config
	registry *prometheus.Registry

	decisionsTotal  *prometheus.CounterVec
	attacksBlocked  prometheus.Counter
	decisionLatency prometheus.Histogram
	budgetRemaining prometheus.Gauge
	pressureLast    prometheus.Gauge
	ledgerEntries   prometheus.Counter
	ledgerBreaks    prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(cfg Config) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "saturn"
	}

	c := &Collector{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	c.decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "decisions_total",
		Help:      "Gate decisions by action and risk level.",
	}, []string{"action", "risk_level"})

	c.attacksBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "attacks_blocked_total",
		Help:      "Requests blocked for high or critical risk.",
	})

	c.decisionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "decision_duration_seconds",
		Help:      "End-to-end decision latency.",
		// Decisions are local pattern scans, far below network latencies.
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	c.budgetRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "budget_remaining",
		Help:      "Remaining non-refillable cost budget.",
	})

	c.pressureLast = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "risk_pressure_last",
		Help:      "Risk pressure of the most recent request.",
	})

	c.ledgerEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "ledger_entries_total",
		Help:      "Audit entries appended since start.",
	})

	c.ledgerBreaks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "ledger_chain_breaks_total",
		Help:      "Chain breaks detected by scheduled verification.",
	})

	c.registry.MustRegister(
		c.decisionsTotal,
		c.attacksBlocked,
		c.decisionLatency,
		c.budgetRemaining,
		c.pressureLast,
		c.ledgerEntries,
		c.ledgerBreaks,
	)

	return c
}

// RecordDecision records one completed gate decision.
func (c *Collector) RecordDecision(action, riskLevel string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.decisionsTotal.WithLabelValues(action, riskLevel).Inc()
	c.decisionLatency.Observe(duration.Seconds())
}

// RecordAttackBlocked increments the blocked-attack counter.
func (c *Collector) RecordAttackBlocked() {
	if !c.config.Enabled {
		return
	}
	c.attacksBlocked.Inc()
}

// SetBudgetRemaining updates the remaining budget gauge.
func (c *Collector) SetBudgetRemaining(remaining float64) {
	if !c.config.Enabled {
		return
	}
	c.budgetRemaining.Set(remaining)
}

// SetLastPressure updates the most-recent-pressure gauge.
func (c *Collector) SetLastPressure(pressure float64) {
	if !c.config.Enabled {
		return
	}
	c.pressureLast.Set(pressure)
}

// RecordLedgerAppend increments the appended-entries counter.
func (c *Collector) RecordLedgerAppend() {
	if !c.config.Enabled {
		return
	}
	c.ledgerEntries.Inc()
}

// RecordChainBreak increments the chain-break counter.
func (c *Collector) RecordChainBreak() {
	if !c.config.Enabled {
		return
	}
	c.ledgerBreaks.Inc()
}

// Registry exposes the underlying registry for embedding.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
