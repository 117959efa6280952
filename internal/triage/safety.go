package triage

import (
	"fmt"
	"strings"
	"time"
)

// escalatedConfidence replaces the model's confidence when the deterministic
// layers overruled it: the floor is trusted over the probabilistic candidate.
const escalatedConfidence = 0.95

// Finalize fuses the LLM candidate with the guardrails floor into the final
// assessment. This is the only place urgency fusion happens and the only
// guarantee that the result is never less urgent than the floor; every
// assessment path, including the red-flag short circuit, must pass through it.
//
// Categories outside the fixed domain are an invariant violation: the error
// carries the audit trail for postmortem and must not be swallowed.
func Finalize(candidate Candidate, floor GuardrailsFloor, trail *AuditTrail) (*FinalAssessment, error) {
	if !candidate.Category.Valid() {
		trail.Record(AuditLayerSafety, "reject", fmt.Sprintf("candidate category %d outside fixed domain", int(candidate.Category)))
		return nil, fmt.Errorf("%w: candidate category %d outside fixed domain (audit: %+v)",
			ErrInvariantViolation, int(candidate.Category), trail.Entries())
	}
	if floor.HasFloor && !floor.Category.Valid() {
		trail.Record(AuditLayerSafety, "reject", fmt.Sprintf("floor category %d outside fixed domain", int(floor.Category)))
		return nil, fmt.Errorf("%w: floor category %d outside fixed domain (audit: %+v)",
			ErrInvariantViolation, int(floor.Category), trail.Entries())
	}

	final := candidate.Category
	if floor.HasFloor {
		final = MostUrgent(candidate.Category, floor.Category)
	}

	assessment := &FinalAssessment{
		Category:        final,
		Confidence:      candidate.Confidence,
		WasEscalated:    final != candidate.Category,
		RedFlags:        floor.RedFlags,
		Alerts:          floor.Alerts,
		Recommendations: mergeRecommendations(candidate, floor),
		FinalizedAt:     time.Now().UTC(),
	}

	if assessment.WasEscalated {
		assessment.Confidence = escalatedConfidence
		assessment.EscalationReason = escalationReason(floor)
		trail.Record(AuditLayerSafety, "escalate",
			fmt.Sprintf("candidate %s raised to floor %s", candidate.Category, final))
	} else {
		trail.Record(AuditLayerSafety, "accept",
			fmt.Sprintf("final category %s (floor respected)", final))
	}

	assessment.AuditTrail = trail.Entries()
	return assessment, nil
}

// escalationReason names the union of triggering red flags and critical
// alerts behind an escalation.
func escalationReason(floor GuardrailsFloor) string {
	var parts []string
	for _, rf := range floor.RedFlags {
		parts = append(parts, rf.DisplayName)
	}
	for _, a := range floor.Alerts {
		if a.Severity == SeverityCritical {
			parts = append(parts, a.Message)
		}
	}
	if len(parts) == 0 {
		return "deterministic safety floor"
	}
	return strings.Join(parts, "; ")
}

// mergeRecommendations unions the model's recommendations with the red-flag
// actions, red-flag actions first, preserving order and dropping duplicates.
func mergeRecommendations(candidate Candidate, floor GuardrailsFloor) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(rec string) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			return
		}
		if _, dup := seen[rec]; dup {
			return
		}
		seen[rec] = struct{}{}
		out = append(out, rec)
	}
	for _, rf := range floor.RedFlags {
		add(rf.RecommendedAction)
	}
	for _, rec := range candidate.Recommendations {
		add(rec)
	}
	return out
}
