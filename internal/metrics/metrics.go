// Package metrics records pipeline counters with Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-trading-bot/internal/types"
)

// Recorder implements the orchestrator, llmobs and engine recorder
// interfaces.
type Recorder struct {
	registry *prometheus.Registry

	tiers         *prometheus.CounterVec
	confidence    *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	aiCalls       *prometheus.CounterVec
	aiLatency     *prometheus.HistogramVec
	riskDecisions *prometheus.CounterVec
	executions    *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	equity        prometheus.Gauge
	openPositions prometheus.Gauge
	breaker       prometheus.Gauge
}

// New registers every collector on a private registry together with the Go
// and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		tiers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_parse_total",
			Help: "Parsed messages by producing tier",
		}, []string{"tier"}),
		confidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalbot_parse_confidence",
			Help:    "Confidence of parsed signals",
			Buckets: []float64{0.2, 0.4, 0.6, 0.7, 0.75, 0.8, 1.0},
		}, []string{"tier"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_whitelist_lookups_total",
			Help: "Whitelist fast-path lookups by result",
		}, []string{"result"}),
		aiCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_ai_calls_total",
			Help: "AI fallback calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		aiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalbot_ai_call_duration_seconds",
			Help:    "AI fallback call latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		riskDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_risk_decisions_total",
			Help: "Risk gate decisions",
		}, []string{"decision"}),
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_executions_total",
			Help: "Orders placed by status",
		}, []string{"status"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_messages_skipped_total",
			Help: "Messages dropped before the risk gate",
		}, []string{"reason"}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_equity",
			Help: "Current account equity",
		}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_open_positions",
			Help: "Currently open positions",
		}),
		breaker: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_circuit_breaker_active",
			Help: "1 while the loss circuit breaker is tripped",
		}),
	}
}

func (r *Recorder) ObserveTier(tier types.Tier, confidence float64) {
	r.tiers.WithLabelValues(string(tier)).Inc()
	r.confidence.WithLabelValues(string(tier)).Observe(confidence)
}

func (r *Recorder) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveAI(provider, outcome string, seconds float64) {
	r.aiCalls.WithLabelValues(provider, outcome).Inc()
	r.aiLatency.WithLabelValues(provider).Observe(seconds)
}

// ObserveRisk counts a gate decision. Rejection reasons are free text, so
// only the verdict is a label.
func (r *Recorder) ObserveRisk(valid bool) {
	decision := "rejected"
	if valid {
		decision = "approved"
	}
	r.riskDecisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) ObserveExecution(status string) {
	r.executions.WithLabelValues(status).Inc()
}

func (r *Recorder) ObserveSkip(reason string) {
	r.skipped.WithLabelValues(reason).Inc()
}

func (r *Recorder) SetAccount(equity float64, open int, breakerActive bool) {
	r.equity.Set(equity)
	r.openPositions.Set(float64(open))
	if breakerActive {
		r.breaker.Set(1)
	} else {
		r.breaker.Set(0)
	}
}

// Registry exposes the registry for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
