package triage

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinova/triage-engine/pkg/logging"
)

var redFlagTracer = otel.Tracer("triage/redflag-detector")

// redFlagPattern is one row of the static red-flag table. A pattern fires at
// most once per assessment; maxAge and minAge gate age-dependent flags
// (0 = no gate).
type redFlagPattern struct {
	id          string
	displayName string
	regex       *regexp.Regexp
	minCategory Category
	action      string
	maxAge      int
	minAge      int
}

var redFlagTable = []redFlagPattern{
	{
		id:          "cardiac_arrest",
		displayName: "Cardiac or respiratory arrest",
		regex:       regexp.MustCompile(`(?i)\b(no\s+pulse|not\s+breathing|stopped\s+breathing|cardiac\s+arrest|unresponsive\s+and\s+not\s+breathing)\b`),
		minCategory: CategoryResuscitation,
		action:      "Begin CPR if trained; emergency services immediately",
	},
	{
		id:          "unconscious",
		displayName: "Unconscious or unresponsive",
		regex:       regexp.MustCompile(`(?i)\b(unconscious|unresponsive|passed\s+out\s+and\s+(won'?t|will\s+not)\s+wake|can'?t\s+wake\s+(him|her|them)\s+up)\b`),
		minCategory: CategoryResuscitation,
		action:      "Emergency services immediately; do not leave the patient alone",
	},
	{
		id:          "anaphylaxis",
		displayName: "Suspected anaphylaxis",
		regex:       regexp.MustCompile(`(?i)\b(throat\s+(is\s+)?(closing|swelling)|tongue\s+swelling|anaphyla(xis|ctic)|severe\s+allergic\s+reaction)\b`),
		minCategory: CategoryResuscitation,
		action:      "Use epinephrine auto-injector if available; emergency services immediately",
	},
	{
		id:          "chest_pain",
		displayName: "Chest pain",
		regex:       regexp.MustCompile(`(?i)\b(chest\s+(pain|pressure|tightness)|crushing\s+(pain|sensation)|pain\s+radiating\s+to\s+(my\s+)?(left\s+)?(arm|jaw|shoulder))\b`),
		minCategory: CategoryEmergency,
		action:      "Possible cardiac event; emergency department without delay",
	},
	{
		id:          "stroke_signs",
		displayName: "Stroke warning signs",
		regex:       regexp.MustCompile(`(?i)\b(face\s+(is\s+)?droop(ing|ed)|slurr(ed|ing)\s+(my\s+)?speech|sudden\s+(numbness|weakness)\s+(on\s+)?(one|left|right)\s+side|can'?t\s+(lift|raise)\s+(my\s+)?arm)\b`),
		minCategory: CategoryEmergency,
		action:      "Possible stroke; emergency department, note symptom onset time",
	},
	{
		id:          "breathing_difficulty",
		displayName: "Severe breathing difficulty",
		regex:       regexp.MustCompile(`(?i)\b(can'?t\s+breathe|(cannot|hard\s+to|struggling\s+to)\s+breathe|gasping\s+for\s+(air|breath)|turning\s+blue)\b`),
		minCategory: CategoryEmergency,
		action:      "Emergency department; keep the patient upright and calm",
	},
	{
		id:          "severe_bleeding",
		displayName: "Uncontrolled bleeding",
		regex:       regexp.MustCompile(`(?i)\b(bleeding\s+(heavily|won'?t\s+stop|uncontrollab\w+)|blood\s+(everywhere|soaking)|spurting\s+blood|coughing\s+up\s+blood|vomiting\s+blood)\b`),
		minCategory: CategoryEmergency,
		action:      "Apply firm direct pressure; emergency department",
	},
	{
		id:          "suicidal_ideation",
		displayName: "Suicidal ideation or self-harm",
		regex:       regexp.MustCompile(`(?i)\b(want\s+to\s+(die|kill\s+myself|end\s+(it|my\s+life))|suicid(e|al)|hurt(ing)?\s+myself|self[-\s]?harm)\b`),
		minCategory: CategoryEmergency,
		action:      "Do not leave the patient alone; crisis line or emergency services",
	},
	{
		id:          "overdose",
		displayName: "Suspected overdose or poisoning",
		regex:       regexp.MustCompile(`(?i)\b(overdos(e|ed|ing)|took\s+too\s+many\s+(pills|tablets)|swallowed\s+(poison|chemicals|bleach)|poison(ed|ing))\b`),
		minCategory: CategoryEmergency,
		action:      "Poison control or emergency services; keep the substance container",
	},
	{
		id:          "seizure_active",
		displayName: "Active or repeated seizure",
		regex:       regexp.MustCompile(`(?i)\b(having\s+a\s+seizure|seizure\s+(won'?t|did\s+not|didn'?t)\s+stop|convuls(ing|ions)|multiple\s+seizures)\b`),
		minCategory: CategoryEmergency,
		action:      "Protect from injury, nothing in the mouth; emergency services",
	},
	{
		id:          "infant_fever",
		displayName: "Fever in infant or toddler",
		regex:       regexp.MustCompile(`(?i)\b(baby|infant|newborn|toddler|my\s+child)\b.{0,60}\b(fever|temperature|burning\s+up)\b|\b(fever|temperature)\b.{0,60}\b(baby|infant|newborn|toddler)\b`),
		minCategory: CategoryUrgent,
		action:      "Young children deteriorate quickly; urgent clinical review",
		maxAge:      3,
	},
	{
		id:          "elderly_fall",
		displayName: "Fall in an older adult",
		regex:       regexp.MustCompile(`(?i)\b(had\s+a\s+fall|fell\s+(down|over)|found\s+(him|her|them)\s+on\s+the\s+floor|slipped\s+and\s+fell)\b`),
		minCategory: CategoryUrgent,
		action:      "Urgent clinical review; falls in older adults risk fracture and head injury",
		minAge:      65,
	},
	{
		id:          "severe_abdominal",
		displayName: "Severe abdominal pain",
		regex:       regexp.MustCompile(`(?i)\b(worst|severe|unbearable|excruciating)\s+(stomach|abdominal|belly)\s+(pain|ache)\b|\brigid\s+abdomen\b`),
		minCategory: CategoryUrgent,
		action:      "Urgent clinical review; avoid food and drink until assessed",
	},
	{
		id:          "head_injury",
		displayName: "Head injury with concerning features",
		regex:       regexp.MustCompile(`(?i)\b(hit\s+(my|his|her|their)\s+head|head\s+injury)\b.{0,80}\b(vomit(ing|ed)|confus(ed|ion)|blacked?\s+out|lost\s+consciousness|drowsy)\b`),
		minCategory: CategoryEmergency,
		action:      "Possible intracranial injury; emergency department",
	},
}

// RedFlagResult is the detector's output for a single assessment: the ordered
// matches plus the derived floor. An empty result is the valid "no red flags"
// answer.
type RedFlagResult struct {
	Matches []RedFlagMatch
	Floor   GuardrailsFloor
}

// RedFlagDetector pattern-matches raw message text against the static
// red-flag table. It performs no I/O and never fails.
type RedFlagDetector struct {
	logger   *logging.Logger
	patterns []redFlagPattern
}

// NewRedFlagDetector creates a detector over the built-in table.
func NewRedFlagDetector(logger *logging.Logger) *RedFlagDetector {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedFlagDetector{logger: logger, patterns: redFlagTable}
}

// Detect scans the message for red-flag presentations. ageYears gates
// age-dependent patterns; pass 0 when the age is unknown (age-gated patterns
// still fire, erring toward over-triage). Each pattern fires at most once;
// the floor is the most urgent minimum category among the matches.
func (d *RedFlagDetector) Detect(ctx context.Context, message string, ageYears int) RedFlagResult {
	_, span := redFlagTracer.Start(ctx, "redflag.detect")
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return RedFlagResult{}
	}

	var result RedFlagResult
	seen := make(map[string]struct{})

	for _, p := range d.patterns {
		if _, fired := seen[p.id]; fired {
			continue
		}
		if p.maxAge > 0 && ageYears > 0 && ageYears >= p.maxAge {
			continue
		}
		if p.minAge > 0 && ageYears > 0 && ageYears < p.minAge {
			continue
		}
		loc := p.regex.FindStringIndex(message)
		if loc == nil {
			continue
		}
		seen[p.id] = struct{}{}

		match := RedFlagMatch{
			ID:                p.id,
			DisplayName:       p.displayName,
			Evidence:          message[loc[0]:loc[1]],
			RecommendedAction: p.action,
			MinimumCategory:   p.minCategory,
		}
		result.Matches = append(result.Matches, match)
		result.Floor.RedFlags = append(result.Floor.RedFlags, match)
		result.Floor.Raise(p.minCategory)
	}

	if len(result.Matches) > 0 {
		span.SetAttributes(
			attribute.Int("redflag.match_count", len(result.Matches)),
			attribute.String("redflag.floor", result.Floor.Category.String()),
		)
		d.logger.Info("red flags detected",
			"count", len(result.Matches),
			"floor", result.Floor.Category.String(),
			"first", result.Matches[0].ID,
		)
	}

	return result
}
