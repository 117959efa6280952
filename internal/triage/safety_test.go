package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalize_NoFloorKeepsCandidate(t *testing.T) {
	trail := NewAuditTrail()
	candidate := Candidate{Category: CategoryNonUrgent, Confidence: 0.8, Recommendations: []string{"rest"}}

	assessment, err := Finalize(candidate, GuardrailsFloor{}, trail)
	require.NoError(t, err)

	assert.Equal(t, CategoryNonUrgent, assessment.Category)
	assert.Equal(t, 0.8, assessment.Confidence)
	assert.False(t, assessment.WasEscalated)
	assert.Empty(t, assessment.EscalationReason)
	assert.Equal(t, []string{"rest"}, assessment.Recommendations)
	assert.False(t, assessment.FinalizedAt.IsZero())
}

func TestFinalize_FloorOverridesLessUrgentCandidate(t *testing.T) {
	trail := NewAuditTrail()
	floor := GuardrailsFloor{
		Category: CategoryEmergency,
		HasFloor: true,
		RedFlags: []RedFlagMatch{{
			ID:                "chest_pain",
			DisplayName:       "Chest pain",
			RecommendedAction: "Call emergency services",
			MinimumCategory:   CategoryEmergency,
		}},
	}
	candidate := Candidate{Category: CategorySemiUrgent, Confidence: 0.7, Recommendations: []string{"see your GP"}}

	assessment, err := Finalize(candidate, floor, trail)
	require.NoError(t, err)

	assert.Equal(t, CategoryEmergency, assessment.Category)
	assert.True(t, assessment.WasEscalated)
	assert.Equal(t, escalatedConfidence, assessment.Confidence)
	assert.Contains(t, assessment.EscalationReason, "Chest pain")
	// Red-flag actions come before the model's recommendations.
	require.Len(t, assessment.Recommendations, 2)
	assert.Equal(t, "Call emergency services", assessment.Recommendations[0])
}

func TestFinalize_MoreUrgentCandidateStands(t *testing.T) {
	trail := NewAuditTrail()
	floor := GuardrailsFloor{Category: CategoryUrgent, HasFloor: true}
	candidate := Candidate{Category: CategoryEmergency, Confidence: 0.9}

	assessment, err := Finalize(candidate, floor, trail)
	require.NoError(t, err)

	assert.Equal(t, CategoryEmergency, assessment.Category)
	assert.False(t, assessment.WasEscalated)
	assert.Equal(t, 0.9, assessment.Confidence)
}

func TestFinalize_EqualCategoriesNotEscalated(t *testing.T) {
	trail := NewAuditTrail()
	floor := GuardrailsFloor{Category: CategoryUrgent, HasFloor: true}
	candidate := Candidate{Category: CategoryUrgent, Confidence: 0.85}

	assessment, err := Finalize(candidate, floor, trail)
	require.NoError(t, err)

	assert.Equal(t, CategoryUrgent, assessment.Category)
	assert.False(t, assessment.WasEscalated)
	assert.Equal(t, 0.85, assessment.Confidence)
}

func TestFinalize_InvalidCandidateCategory(t *testing.T) {
	trail := NewAuditTrail()
	trail.Record(AuditLayerLLM, "classify", "test entry")

	_, err := Finalize(Candidate{Category: Category(9)}, GuardrailsFloor{}, trail)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	// The audit trail rides along in the error for postmortem.
	assert.Contains(t, err.Error(), "test entry")
}

func TestFinalize_InvalidFloorCategory(t *testing.T) {
	trail := NewAuditTrail()
	floor := GuardrailsFloor{Category: Category(0), HasFloor: true}

	_, err := Finalize(Candidate{Category: CategoryUrgent}, floor, trail)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestFinalize_RecordsSafetyAuditEntry(t *testing.T) {
	trail := NewAuditTrail()
	_, err := Finalize(Candidate{Category: CategoryNonUrgent, Confidence: 0.5}, GuardrailsFloor{}, trail)
	require.NoError(t, err)

	assert.True(t, trail.HasLayer(AuditLayerSafety))
}

func TestFinalize_EscalationReasonIncludesCriticalAlerts(t *testing.T) {
	trail := NewAuditTrail()
	floor := GuardrailsFloor{
		Category: CategoryResuscitation,
		HasFloor: true,
		Alerts: []ClinicalAlert{
			{Kind: AlertKindVitalSign, Severity: SeverityCritical, Message: "systolic BP 80 below critical threshold 90"},
			{Kind: AlertKindSymptomSeverity, Severity: SeverityWarning, Message: "pain 8/10"},
		},
	}

	assessment, err := Finalize(Candidate{Category: CategoryNonUrgent, Confidence: 0.6}, floor, trail)
	require.NoError(t, err)

	assert.Contains(t, assessment.EscalationReason, "systolic BP 80")
	assert.NotContains(t, assessment.EscalationReason, "pain 8/10")
}

func TestMergeRecommendations_Dedupes(t *testing.T) {
	floor := GuardrailsFloor{RedFlags: []RedFlagMatch{
		{RecommendedAction: "Call emergency services"},
		{RecommendedAction: "Call emergency services"},
	}}
	candidate := Candidate{Recommendations: []string{"Call emergency services", "  ", "Do not drive yourself"}}

	got := mergeRecommendations(candidate, floor)
	assert.Equal(t, []string{"Call emergency services", "Do not drive yourself"}, got)
}
