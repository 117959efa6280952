package triage

import (
	"regexp"
	"strconv"
	"strings"
)

// Deterministic extraction of structured presentation data from free text.
// This feeds the clinical rules engine; anything it misses the LLM can still
// reason about from the raw transcript.

var (
	painScoreRe = regexp.MustCompile(`(?i)\b(?:pain\s+(?:is\s+|of\s+|at\s+)?|rate\s+it\s+(?:a\s+|an\s+)?)?(10|[0-9])\s*(?:/|out\s+of)\s*10\b`)
	ageRe       = regexp.MustCompile(`(?i)\b(?:i\s+am|i'm|aged?|he\s+is|she\s+is)\s+(\d{1,3})\s*(?:years?\s+old|yo|y/o)?\b|\b(\d{1,3})\s*(?:years?\s+old|yo|y/o)\b`)
	durationRe  = regexp.MustCompile(`(?i)\b(?:for|since|about|over|past|last)\s+((?:a\s+|an\s+|\d+\s*)(?:minutes?|mins?|hours?|hrs?|days?|weeks?|months?))\b`)
	bpRe        = regexp.MustCompile(`(?i)\b(?:bp|blood\s+pressure)\s*(?:is|of|:)?\s*(\d{2,3})\s*/\s*\d{2,3}\b`)
	spo2Re      = regexp.MustCompile(`(?i)\b(?:spo2|sp02|o2\s*sat(?:uration)?|oxygen(?:\s+saturation)?)\s*(?:is|of|:)?\s*(\d{2,3})\s*%?\b`)
	heartRateRe = regexp.MustCompile(`(?i)\b(?:heart\s*rate|pulse|hr)\s*(?:is|of|:)?\s*(\d{2,3})\b`)
	respRateRe  = regexp.MustCompile(`(?i)\b(?:resp(?:iratory)?\s*rate|rr|breaths?\s+per\s+min(?:ute)?)\s*(?:is|of|:)?\s*(\d{1,2})\b`)
	tempRe      = regexp.MustCompile(`(?i)\b(?:temp(?:erature)?|fever)\s*(?:is|of|:)?\s*(\d{2,3}(?:\.\d)?)\s*(?:°?\s*([cf]))?\b`)
	suddenRe    = regexp.MustCompile(`(?i)\b(sudden(?:ly)?|out\s+of\s+nowhere|all\s+of\s+a\s+sudden|came\s+on\s+fast)\b`)
	gradualRe   = regexp.MustCompile(`(?i)\b(gradual(?:ly)?|slowly|over\s+time|getting\s+worse\s+over)\b`)
)

// symptomKeywords maps message substrings to canonical symptom labels.
var symptomKeywords = []struct {
	keyword string
	symptom string
}{
	{"headache", "headache"},
	{"migraine", "headache"},
	{"chest pain", "chest pain"},
	{"chest pressure", "chest pain"},
	{"short of breath", "shortness of breath"},
	{"shortness of breath", "shortness of breath"},
	{"breathless", "shortness of breath"},
	{"fever", "fever"},
	{"cough", "cough"},
	{"nausea", "nausea"},
	{"vomit", "vomiting"},
	{"dizzy", "dizziness"},
	{"dizziness", "dizziness"},
	{"rash", "rash"},
	{"stomach pain", "abdominal pain"},
	{"abdominal pain", "abdominal pain"},
	{"belly ache", "abdominal pain"},
	{"sore throat", "sore throat"},
	{"back pain", "back pain"},
	{"diarrhea", "diarrhea"},
	{"fatigue", "fatigue"},
	{"tired", "fatigue"},
	{"palpitations", "palpitations"},
	{"swelling", "swelling"},
	{"numbness", "numbness"},
	{"weakness", "weakness"},
	{"bleeding", "bleeding"},
}

// ExtractCollectedData parses ages, pain scores, durations, vitals, onset and
// symptom keywords out of a single patient message. Purely syntactic; no I/O.
func ExtractCollectedData(message string) CollectedData {
	var data CollectedData
	lower := strings.ToLower(message)

	for _, sk := range symptomKeywords {
		if strings.Contains(lower, sk.keyword) {
			data.Symptoms = appendUnique(data.Symptoms, sk.symptom)
		}
	}

	if m := painScoreRe.FindStringSubmatch(message); m != nil {
		if score, err := strconv.Atoi(m[1]); err == nil && score >= 0 && score <= 10 {
			data.PainScore = score
		}
	}

	if m := ageRe.FindStringSubmatch(message); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if age, err := strconv.Atoi(raw); err == nil && age > 0 && age < 120 {
			data.AgeYears = age
			data.AgeSpecified = true
		}
	}

	if m := durationRe.FindStringSubmatch(message); m != nil {
		data.Duration = strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
	}

	if m := bpRe.FindStringSubmatch(message); m != nil {
		if bp, err := strconv.Atoi(m[1]); err == nil && bp > 40 && bp < 300 {
			data.Vitals.SystolicBP = bp
		}
	}
	if m := spo2Re.FindStringSubmatch(message); m != nil {
		if spo2, err := strconv.Atoi(m[1]); err == nil && spo2 > 40 && spo2 <= 100 {
			data.Vitals.SpO2 = spo2
		}
	}
	if m := heartRateRe.FindStringSubmatch(message); m != nil {
		if hr, err := strconv.Atoi(m[1]); err == nil && hr > 20 && hr < 300 {
			data.Vitals.HeartRate = hr
		}
	}
	if m := respRateRe.FindStringSubmatch(message); m != nil {
		if rr, err := strconv.Atoi(m[1]); err == nil && rr > 4 && rr < 80 {
			data.Vitals.RespiratoryRate = rr
		}
	}
	if m := tempRe.FindStringSubmatch(message); m != nil {
		if temp, err := strconv.ParseFloat(m[1], 64); err == nil {
			unit := strings.ToLower(m[2])
			if unit == "f" || temp > 45 {
				temp = (temp - 32) * 5 / 9
			}
			if temp > 30 && temp < 45 {
				data.Vitals.TemperatureC = temp
			}
		}
	}

	if suddenRe.MatchString(message) {
		data.Onset = "sudden"
	} else if gradualRe.MatchString(message) {
		data.Onset = "gradual"
	}

	return data
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
