package triage

import (
	"fmt"

	"github.com/clinova/triage-engine/pkg/logging"
)

// Clinical thresholds. Table-driven so the rule set reads as data; each rule
// independently proposes an escalation target and the engine folds them with
// most-urgent-wins.
const (
	criticalSystolicBP   = 90
	criticalSpO2         = 92
	tachycardiaThreshold = 130
	bradycardiaThreshold = 40
	tachypneaThreshold   = 30
	severePainThreshold  = 8
	feverThresholdC      = 38.0
	youngAgeYears        = 3
	elderlyAgeYears      = 75
)

// clinicalRule evaluates one threshold against the structured presentation.
// It returns a proposed escalation target (0 for none) and the alert to emit.
type clinicalRule struct {
	name string
	eval func(data CollectedData) (Category, *ClinicalAlert)
}

var clinicalRuleTable = []clinicalRule{
	{
		name: "hypotension",
		eval: func(data CollectedData) (Category, *ClinicalAlert) {
			bp := data.Vitals.SystolicBP
			if bp == 0 || bp >= criticalSystolicBP {
				return 0, nil
			}
			return CategoryResuscitation, &ClinicalAlert{
				Kind:     AlertKindVitalSign,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("systolic BP %d below critical threshold %d", bp, criticalSystolicBP),
			}
		},
	},
	{
		name: "hypoxia",
		eval: func(data CollectedData) (Category, *ClinicalAlert) {
			spo2 := data.Vitals.SpO2
			if spo2 == 0 || spo2 >= criticalSpO2 {
				return 0, nil
			}
			return CategoryEmergency, &ClinicalAlert{
				Kind:     AlertKindVitalSign,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("SpO2 %d%% below threshold %d%%", spo2, criticalSpO2),
			}
		},
	},
	{
		name: "heart_rate",
		eval: func(data CollectedData) (Category, *ClinicalAlert) {
			hr := data.Vitals.HeartRate
			if hr == 0 {
				return 0, nil
			}
			if hr > tachycardiaThreshold {
				return CategoryEmergency, &ClinicalAlert{
					Kind:     AlertKindVitalSign,
					Severity: SeverityCritical,
					Message:  fmt.Sprintf("heart rate %d above threshold %d", hr, tachycardiaThreshold),
				}
			}
			if hr < bradycardiaThreshold {
				return CategoryEmergency, &ClinicalAlert{
					Kind:     AlertKindVitalSign,
					Severity: SeverityCritical,
					Message:  fmt.Sprintf("heart rate %d below threshold %d", hr, bradycardiaThreshold),
				}
			}
			return 0, nil
		},
	},
	{
		name: "respiratory_rate",
		eval: func(data CollectedData) (Category, *ClinicalAlert) {
			rr := data.Vitals.RespiratoryRate
			if rr == 0 || rr <= tachypneaThreshold {
				return 0, nil
			}
			return CategoryEmergency, &ClinicalAlert{
				Kind:     AlertKindVitalSign,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("respiratory rate %d above threshold %d", rr, tachypneaThreshold),
			}
		},
	},
	{
		name: "severe_pain",
		eval: func(data CollectedData) (Category, *ClinicalAlert) {
			if data.PainScore < severePainThreshold {
				return 0, nil
			}
			return CategoryUrgent, &ClinicalAlert{
				Kind:     AlertKindSymptomSeverity,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("self-reported pain %d/10 at or above %d/10", data.PainScore, severePainThreshold),
			}
		},
	},
	{
		name: "age_extremes_with_fever",
		eval: func(data CollectedData) (Category, *ClinicalAlert) {
			if !data.AgeSpecified || data.Vitals.TemperatureC < feverThresholdC {
				return 0, nil
			}
			if data.AgeYears < youngAgeYears {
				return CategoryUrgent, &ClinicalAlert{
					Kind:     AlertKindAgeRisk,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("fever %.1fC in child under %d", data.Vitals.TemperatureC, youngAgeYears),
				}
			}
			if data.AgeYears >= elderlyAgeYears {
				return CategoryUrgent, &ClinicalAlert{
					Kind:     AlertKindAgeRisk,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("fever %.1fC at age %d", data.Vitals.TemperatureC, data.AgeYears),
				}
			}
			return 0, nil
		},
	},
	{
		name: "sudden_severe_onset",
		eval: func(data CollectedData) (Category, *ClinicalAlert) {
			if data.Onset != "sudden" || data.PainScore < severePainThreshold {
				return 0, nil
			}
			return CategoryUrgent, &ClinicalAlert{
				Kind:     AlertKindOnset,
				Severity: SeverityWarning,
				Message:  "sudden onset combined with severe symptoms",
			}
		},
	},
}

// RulesEngine evaluates the structured presentation against the clinical
// threshold table. Synchronous and deterministic: identical input produces
// identical output, which audit replay and the tests rely on.
type RulesEngine struct {
	logger *logging.Logger
	rules  []clinicalRule
}

// NewRulesEngine creates an engine over the built-in rule table.
func NewRulesEngine(logger *logging.Logger) *RulesEngine {
	if logger == nil {
		logger = logging.Default()
	}
	return &RulesEngine{logger: logger, rules: clinicalRuleTable}
}

// Evaluate applies every rule to the presentation and folds the proposed
// escalations into the supplied floor. The floor only tightens: a rule can
// never lower what the red-flag detector already established.
func (e *RulesEngine) Evaluate(data CollectedData, floor GuardrailsFloor) GuardrailsFloor {
	for _, rule := range e.rules {
		target, alert := rule.eval(data)
		if alert == nil {
			continue
		}
		floor.Alerts = append(floor.Alerts, *alert)
		floor.Raise(target)
		e.logger.Debug("clinical rule fired",
			"rule", rule.name,
			"target", target.String(),
			"severity", string(alert.Severity),
		)
	}
	return floor
}

// HasCriticalAlert reports whether any alert on the floor is critical.
func HasCriticalAlert(floor GuardrailsFloor) bool {
	for _, a := range floor.Alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
