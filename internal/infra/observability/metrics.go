package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the hub.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	messageDuration *prometheus.HistogramVec
	messagesTotal   *prometheus.CounterVec
	handoffsTotal   *prometheus.CounterVec
	switchesTotal   *prometheus.CounterVec
	autoReverts     prometheus.Counter
	lockTimeouts    prometheus.Counter
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
}

// RoutingStats is the JSON snapshot served by GET /v1/stats/routing.
type RoutingStats struct {
	MessagesProcessed float64            `json:"messages_processed"`
	MessagesFailed    float64            `json:"messages_failed"`
	ContextSwitches   float64            `json:"context_switches"`
	AutoReverts       float64            `json:"auto_reverts"`
	LockTimeouts      float64            `json:"lock_timeouts"`
	HandoffsByOutcome map[string]float64 `json:"handoffs_by_outcome"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		messageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hub_message_duration_seconds",
				Help:    "Duration of message processing by agent.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_messages_total",
				Help: "Total messages processed, by outcome.",
			},
			[]string{"status"},
		),
		handoffsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_handoffs_total",
				Help: "Total agent hand-offs, by source, target and outcome.",
			},
			[]string{"from", "to", "outcome"},
		),
		switchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_context_switches_total",
				Help: "Total router-accepted mode switches.",
			},
			[]string{"from", "to"},
		),
		autoReverts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hub_auto_reverts_total",
				Help: "Total anti-oscillation reverts.",
			},
		),
		lockTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hub_lock_timeouts_total",
				Help: "Total contact-lock acquisition timeouts.",
			},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordMessageDuration records how long one message took end to end.
func (m *Metrics) RecordMessageDuration(agent string, d time.Duration) {
	m.messageDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// IncrMessage increments the processed-message counter with an outcome label.
func (m *Metrics) IncrMessage(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

// IncrHandoff increments the hand-off counter.
func (m *Metrics) IncrHandoff(from, to, outcome string) {
	m.handoffsTotal.WithLabelValues(from, to, outcome).Inc()
}

// IncrSwitch increments the context-switch counter.
func (m *Metrics) IncrSwitch(from, to string) {
	m.switchesTotal.WithLabelValues(from, to).Inc()
}

// IncrAutoRevert increments the anti-oscillation revert counter.
func (m *Metrics) IncrAutoRevert() {
	m.autoReverts.Inc()
}

// IncrLockTimeout increments the lock timeout counter.
func (m *Metrics) IncrLockTimeout() {
	m.lockTimeouts.Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetRoutingSnapshot returns a snapshot of routing-related counters suitable
// for the GET /v1/stats/routing endpoint.
func (m *Metrics) GetRoutingSnapshot() *RoutingStats {
	handoffs := map[string]float64{}
	families, err := m.Registry.Gather()
	if err == nil {
		for _, fam := range families {
			if fam.GetName() != "hub_handoffs_total" {
				continue
			}
			for _, metric := range fam.GetMetric() {
				outcome := ""
				for _, l := range metric.GetLabel() {
					if l.GetName() == "outcome" {
						outcome = l.GetValue()
					}
				}
				handoffs[outcome] += metric.GetCounter().GetValue()
			}
		}
	}

	switches := float64(0)
	for _, fam := range mustGather(m.Registry, "hub_context_switches_total") {
		switches += fam.GetCounter().GetValue()
	}

	failed := getCounterValue(m.messagesTotal, "agent_error") +
		getCounterValue(m.messagesTotal, "handoff_failed") +
		getCounterValue(m.messagesTotal, "panic")

	return &RoutingStats{
		MessagesProcessed: getCounterValue(m.messagesTotal, "success"),
		MessagesFailed:    failed,
		ContextSwitches:   switches,
		AutoReverts:       getPlainCounterValue(m.autoReverts),
		LockTimeouts:      getPlainCounterValue(m.lockTimeouts),
		HandoffsByOutcome: handoffs,
	}
}

// mustGather returns the individual metrics of one family, or nil.
func mustGather(reg *prometheus.Registry, name string) []*dto.Metric {
	families, err := reg.Gather()
	if err != nil {
		return nil
	}
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()
		}
	}
	return nil
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getPlainCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
