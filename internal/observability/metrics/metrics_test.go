package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTriageMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTriageMetrics(reg)
	require.NotNil(t, m)

	m.ObserveAssessment("emergency", true, 1)
	m.ObserveAssessment("non_urgent", false, 4)
	m.ObserveRedFlag("chest_pain")
	m.ObserveRedFlag("chest_pain")
	m.ObserveLLMLatency("ok", 0.42)
	m.ObserveLLMFailure()

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			key := fam.GetName()
			for _, label := range metric.GetLabel() {
				key += "/" + label.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				byName[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				byName[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, float64(1), byName["triage_engine_assessments_total/emergency/true"])
	assert.Equal(t, float64(1), byName["triage_engine_assessments_total/non_urgent/false"])
	assert.Equal(t, float64(2), byName["triage_engine_red_flags_total/chest_pain"])
	assert.Equal(t, float64(1), byName["triage_llm_latency_seconds/ok"])
	assert.Equal(t, float64(1), byName["triage_llm_failures_total"])
	assert.Equal(t, float64(2), byName["triage_engine_turns_to_complete"])
}

func TestTriageMetrics_NilSafe(t *testing.T) {
	var m *TriageMetrics

	assert.NotPanics(t, func() {
		m.ObserveAssessment("urgent", false, 2)
		m.ObserveRedFlag("chest_pain")
		m.ObserveLLMLatency("error", 1.2)
		m.ObserveLLMFailure()
	})
}
