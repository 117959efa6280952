package metrics

import "github.com/prometheus/client_golang/prometheus"

// TriageMetrics exposes counters/histograms for the triage decision flow.
type TriageMetrics struct {
	assessmentsTotal *prometheus.CounterVec
	redFlagsTotal    *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	llmFailures      prometheus.Counter
	turnsToComplete  prometheus.Histogram
}

func NewTriageMetrics(reg prometheus.Registerer) *TriageMetrics {
	m := &TriageMetrics{
		assessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "engine",
			Name:      "assessments_total",
			Help:      "Total finalized assessments",
		}, []string{"category", "escalated"}),
		redFlagsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "engine",
			Name:      "red_flags_total",
			Help:      "Total red-flag pattern matches",
		}, []string{"flag"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of LLM classification calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		llmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "llm",
			Name:      "failures_total",
			Help:      "Total LLM transport failures",
		}),
		turnsToComplete: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "engine",
			Name:      "turns_to_complete",
			Help:      "Patient turns taken before an assessment was finalized",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.assessmentsTotal, m.redFlagsTotal, m.llmLatency, m.llmFailures, m.turnsToComplete)
	return m
}

func (m *TriageMetrics) ObserveAssessment(category string, escalated bool, userTurns int) {
	if m == nil {
		return
	}
	label := "false"
	if escalated {
		label = "true"
	}
	m.assessmentsTotal.WithLabelValues(category, label).Inc()
	m.turnsToComplete.Observe(float64(userTurns))
}

func (m *TriageMetrics) ObserveRedFlag(flagID string) {
	if m == nil {
		return
	}
	m.redFlagsTotal.WithLabelValues(flagID).Inc()
}

func (m *TriageMetrics) ObserveLLMLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *TriageMetrics) ObserveLLMFailure() {
	if m == nil {
		return
	}
	m.llmFailures.Inc()
}
