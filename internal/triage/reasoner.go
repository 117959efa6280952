package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinova/triage-engine/pkg/logging"
)

const (
	// fallbackCategory is used when parsing fails and no floor exists:
	// least-urgent-but-one, so a broken model never produces the most
	// permissive answer on its own.
	fallbackCategory = CategorySemiUrgent

	fallbackConfidence = 0.3
	fallbackReasoning  = "Automated classification unavailable; clinical evaluation recommended."

	defaultLLMTimeout = 10 * time.Second
)

const reasonerSystemPrompt = `You are a clinical triage assistant gathering symptom information from a patient.
Classify the presentation into exactly one category:
- resuscitation: immediately life-threatening
- emergency: imminently life-threatening
- urgent: potentially serious, should be seen soon
- semi_urgent: potentially serious, can wait
- non_urgent: less urgent

Respond with JSON only, no prose outside the JSON object:
{"category": "<category>", "confidence": <0.0-1.0>, "reasoning": "<short clinical reasoning>", "recommendations": ["<next step>", ...], "ready_to_triage": <true|false>, "follow_up_question": "<question to ask the patient, or empty if ready>"}

Set ready_to_triage to true only when you have enough information to classify safely.
You may choose a MORE urgent category than the stated safety floor, never a less urgent one.`

// ReasonerConfig carries the provider knobs that are configuration, not logic.
type ReasonerConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

// Reasoner is the LLM reasoning adapter: it shapes the request with the
// deterministic floor as context, invokes the provider, and decodes the
// structured response with a defined fallback for malformed output.
type Reasoner struct {
	client LLMClient
	cfg    ReasonerConfig
	logger *logging.Logger
}

// NewReasoner wires a reasoner around the supplied LLM client.
func NewReasoner(client LLMClient, cfg ReasonerConfig, logger *logging.Logger) *Reasoner {
	if client == nil {
		panic("triage: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLLMTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	return &Reasoner{client: client, cfg: cfg, logger: logger}
}

// Classify asks the model for a candidate classification. The floor and its
// alerts are included as explicit context: the model is informed of, but not
// bound by, the deterministic constraints. Transport failures return
// ErrExternalService; malformed output returns a fallback candidate that is
// never less urgent than the floor.
func (r *Reasoner) Classify(ctx context.Context, conv *Conversation, floor GuardrailsFloor) (Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	system := []string{reasonerSystemPrompt}
	if summary := floorSummary(floor, conv.Collected); summary != "" {
		system = append(system, summary)
	}

	messages := make([]ChatMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}

	started := time.Now()
	resp, err := r.client.Complete(ctx, LLMRequest{
		Model:       r.cfg.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Candidate{}, fmt.Errorf("%w: llm call timed out: %v", ErrExternalService, err)
		}
		return Candidate{}, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	candidate, ok := parseCandidate(resp.Text)
	if !ok {
		r.logger.Warn("llm response unparseable, using fallback candidate",
			"response_len", len(resp.Text),
			"has_floor", floor.HasFloor,
		)
		return FallbackCandidate(floor, "unparseable llm response"), nil
	}

	r.logger.Debug("llm candidate parsed",
		"category", candidate.Category.String(),
		"confidence", candidate.Confidence,
		"ready", candidate.ReadyToTriage,
		"duration_ms", time.Since(started).Milliseconds(),
		"tokens", resp.Usage.TotalTokens,
	)
	return candidate, nil
}

// candidatePayload mirrors the JSON contract in the system prompt.
type candidatePayload struct {
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
	ReadyToTriage   bool     `json:"ready_to_triage"`
	FollowUp        string   `json:"follow_up_question"`
}

// parseCandidate decodes the model's JSON reply. Returns false for anything
// that does not yield a category from the fixed domain.
func parseCandidate(raw string) (Candidate, bool) {
	text := extractJSONObject(stripCodeFence(raw))
	if text == "" {
		return Candidate{}, false
	}

	var payload candidatePayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Candidate{}, false
	}

	category, ok := ParseCategory(payload.Category)
	if !ok {
		return Candidate{}, false
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Candidate{
		Category:        category,
		Confidence:      confidence,
		Reasoning:       strings.TrimSpace(payload.Reasoning),
		Recommendations: payload.Recommendations,
		ReadyToTriage:   payload.ReadyToTriage,
		FollowUp:        strings.TrimSpace(payload.FollowUp),
	}, true
}

// FallbackCandidate is the defined answer for malformed model output:
// category = floor when one exists, otherwise the fixed default; never less
// urgent than the floor.
func FallbackCandidate(floor GuardrailsFloor, reason string) Candidate {
	category := fallbackCategory
	if floor.HasFloor {
		category = floor.Category
	}
	return Candidate{
		Category:        category,
		Confidence:      fallbackConfidence,
		Reasoning:       fallbackReasoning,
		Recommendations: []string{"Seek clinical evaluation"},
		ReadyToTriage:   true,
		Fallback:        true,
		FallbackReason:  reason,
	}
}

// floorSummary renders the deterministic constraints for the model's context.
func floorSummary(floor GuardrailsFloor, data CollectedData) string {
	var sb strings.Builder

	if floor.HasFloor {
		fmt.Fprintf(&sb, "Safety floor: the final category will be at least %q.\n", floor.Category.String())
	}
	for _, rf := range floor.RedFlags {
		fmt.Fprintf(&sb, "Red flag: %s (evidence: %q).\n", rf.DisplayName, rf.Evidence)
	}
	for _, a := range floor.Alerts {
		fmt.Fprintf(&sb, "Clinical alert [%s/%s]: %s.\n", a.Kind, a.Severity, a.Message)
	}
	if len(data.Symptoms) > 0 {
		fmt.Fprintf(&sb, "Reported symptoms so far: %s.\n", strings.Join(data.Symptoms, ", "))
	}
	if data.AgeSpecified {
		fmt.Fprintf(&sb, "Patient age: %d.\n", data.AgeYears)
	}
	if data.PainScore > 0 {
		fmt.Fprintf(&sb, "Self-reported pain: %d/10.\n", data.PainScore)
	}
	if data.Duration != "" {
		fmt.Fprintf(&sb, "Symptom duration: %s.\n", data.Duration)
	}

	return strings.TrimSpace(sb.String())
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}
