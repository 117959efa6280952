package triage

import "time"

// RedFlagMatch records a single red-flag pattern that fired against the
// patient's message. Matches are produced per assessment and never persisted
// on their own.
type RedFlagMatch struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"display_name"`
	Evidence          string   `json:"evidence"`
	RecommendedAction string   `json:"recommended_action"`
	MinimumCategory   Category `json:"minimum_category"`
}

// AlertKind classifies which clinical rule family produced an alert.
type AlertKind string

const (
	AlertKindVitalSign       AlertKind = "vital_sign"
	AlertKindAgeRisk         AlertKind = "age_risk"
	AlertKindSymptomSeverity AlertKind = "symptom_severity"
	AlertKindOnset           AlertKind = "onset"
)

// AlertSeverity grades a clinical alert.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// ClinicalAlert is a single threshold breach reported by the rules engine.
type ClinicalAlert struct {
	Kind     AlertKind     `json:"kind"`
	Message  string        `json:"message"`
	Severity AlertSeverity `json:"severity"`
}

// GuardrailsFloor is the fused deterministic result of the red-flag detector
// and the clinical rules engine. When HasFloor is true, Category equals the
// most urgent category among all contributing red flags and alerts, and the
// final assessment may never be less urgent than it.
type GuardrailsFloor struct {
	Category Category        `json:"category,omitempty"`
	HasFloor bool            `json:"has_floor"`
	RedFlags []RedFlagMatch  `json:"red_flags,omitempty"`
	Alerts   []ClinicalAlert `json:"alerts,omitempty"`
}

// Raise tightens the floor to c if c is more urgent than the current floor.
// It never loosens.
func (f *GuardrailsFloor) Raise(c Category) {
	if !c.Valid() {
		return
	}
	if !f.HasFloor || c.MoreUrgentThan(f.Category) {
		f.Category = c
		f.HasFloor = true
	}
}

// Candidate is the LLM reasoning layer's proposed classification. Confidence
// is advisory only and never overrides the floor. Fallback marks candidates
// synthesized locally after the provider returned malformed output.
type Candidate struct {
	Category        Category `json:"category"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
	ReadyToTriage   bool     `json:"ready_to_triage"`
	FollowUp        string   `json:"follow_up,omitempty"`
	Fallback        bool     `json:"fallback,omitempty"`
	FallbackReason  string   `json:"fallback_reason,omitempty"`
}

// FinalAssessment is the safety envelope's output: the category handed to a
// human, with the full evidence and audit trail behind it. Category is never
// less urgent than the guardrails floor.
type FinalAssessment struct {
	Category         Category        `json:"category"`
	Confidence       float64         `json:"confidence"`
	WasEscalated     bool            `json:"was_escalated"`
	EscalationReason string          `json:"escalation_reason,omitempty"`
	RedFlags         []RedFlagMatch  `json:"red_flags,omitempty"`
	Alerts           []ClinicalAlert `json:"alerts,omitempty"`
	Recommendations  []string        `json:"recommendations,omitempty"`
	AuditTrail       []AuditEntry    `json:"audit_trail"`
	FinalizedAt      time.Time       `json:"finalized_at"`
}

// Stage is a conversation lifecycle stage. Complete is terminal.
type Stage string

const (
	StageGreeting   Stage = "greeting"
	StageCollecting Stage = "collecting"
	StageClarifying Stage = "clarifying"
	StageTriaging   Stage = "triaging"
	StageComplete   Stage = "complete"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in the conversation transcript.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Vitals holds structured vital signs. Zero means not reported.
type Vitals struct {
	SystolicBP      int     `json:"systolic_bp,omitempty"`
	HeartRate       int     `json:"heart_rate,omitempty"`
	RespiratoryRate int     `json:"respiratory_rate,omitempty"`
	SpO2            int     `json:"spo2,omitempty"`
	TemperatureC    float64 `json:"temperature_c,omitempty"`
}

// CollectedData is the structured presentation accumulated across turns.
// Zero values mean not yet collected.
type CollectedData struct {
	Symptoms     []string `json:"symptoms,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	PainScore    int      `json:"pain_score,omitempty"`
	Onset        string   `json:"onset,omitempty"`
	AgeYears     int      `json:"age_years,omitempty"`
	AgeSpecified bool     `json:"age_specified,omitempty"`
	Vitals       Vitals   `json:"vitals,omitempty"`
}

// Merge folds a partial extraction into the accumulated data. Non-zero fields
// in partial win; symptoms are unioned preserving first-seen order.
func (d *CollectedData) Merge(partial CollectedData) {
	seen := make(map[string]struct{}, len(d.Symptoms))
	for _, s := range d.Symptoms {
		seen[s] = struct{}{}
	}
	for _, s := range partial.Symptoms {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		d.Symptoms = append(d.Symptoms, s)
	}
	if partial.Duration != "" {
		d.Duration = partial.Duration
	}
	if partial.PainScore > 0 {
		d.PainScore = partial.PainScore
	}
	if partial.Onset != "" {
		d.Onset = partial.Onset
	}
	if partial.AgeSpecified {
		d.AgeYears = partial.AgeYears
		d.AgeSpecified = true
	}
	if partial.Vitals.SystolicBP > 0 {
		d.Vitals.SystolicBP = partial.Vitals.SystolicBP
	}
	if partial.Vitals.HeartRate > 0 {
		d.Vitals.HeartRate = partial.Vitals.HeartRate
	}
	if partial.Vitals.RespiratoryRate > 0 {
		d.Vitals.RespiratoryRate = partial.Vitals.RespiratoryRate
	}
	if partial.Vitals.SpO2 > 0 {
		d.Vitals.SpO2 = partial.Vitals.SpO2
	}
	if partial.Vitals.TemperatureC > 0 {
		d.Vitals.TemperatureC = partial.Vitals.TemperatureC
	}
}

// Conversation is the unit of work the engine serializes on. Once Stage is
// StageComplete the assessment is immutable and no layer runs again.
type Conversation struct {
	ID         string           `json:"id"`
	Stage      Stage            `json:"stage"`
	Messages   []Message        `json:"messages"`
	Collected  CollectedData    `json:"collected_data"`
	Assessment *FinalAssessment `json:"final_assessment,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// UserTurnCount returns how many patient messages the transcript holds.
func (c *Conversation) UserTurnCount() int {
	count := 0
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			count++
		}
	}
	return count
}
