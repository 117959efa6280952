package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinova/triage-engine/internal/observability/metrics"
	"github.com/clinova/triage-engine/pkg/logging"
)

var engineTracer = otel.Tracer("triage/engine")

const (
	defaultForceTriageTurns  = 4
	defaultClarifyAfterTurns = 2

	greetingMessage = "Hello, I'm here to help understand your symptoms before you speak with a clinician. What brings you in today?"

	clarifyingPrompt = "Thank you. Could you tell me a bit more about your symptoms - when they started, and how severe they feel?"

	// Shown when the LLM is unavailable and no deterministic floor exists.
	// The conversation stays where it is so the next turn can retry.
	retryPrompt = "Thanks for bearing with me. Could you describe your main symptom in a little more detail?"
)

// EngineConfig tunes the conversation state machine.
type EngineConfig struct {
	// ForceTriageTurns finalizes the assessment after this many patient
	// turns even if the model never reports it is ready.
	ForceTriageTurns int
	// ClarifyAfterTurns moves the stage from collecting to clarifying once
	// this many patient turns have occurred.
	ClarifyAfterTurns int
}

// Engine is the multi-turn conversation state machine. It owns turn
// orchestration across the deterministic layers and the LLM adapter, decides
// when enough information has been gathered to finalize, and holds the audit
// trail for each assessment.
//
// Per-conversation processing is serialized with a keyed mutex: a turn reads
// the conversation, awaits the LLM, and writes back merged state, so two
// concurrent requests for the same id would otherwise race. Readers take the
// same lock, so a turn's writes become visible all at once, never one by one.
// Conversations never share mutable state with each other.
type Engine struct {
	store    ConversationStore
	detector *RedFlagDetector
	rules    *RulesEngine
	reasoner *Reasoner
	archive  *AssessmentArchive
	logger   *logging.Logger
	events   *EventLogger
	metrics  *metrics.TriageMetrics
	cfg      EngineConfig
	locks    *keyedMutex
}

var _ Service = (*Engine)(nil)

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithArchive attaches a best-effort Postgres archive for completed
// assessments.
func WithArchive(archive *AssessmentArchive) EngineOption {
	return func(e *Engine) { e.archive = archive }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *metrics.TriageMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineConfig overrides the default thresholds.
func WithEngineConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) {
		if cfg.ForceTriageTurns > 0 {
			e.cfg.ForceTriageTurns = cfg.ForceTriageTurns
		}
		if cfg.ClarifyAfterTurns > 0 {
			e.cfg.ClarifyAfterTurns = cfg.ClarifyAfterTurns
		}
	}
}

// NewEngine wires the state machine around its layers.
func NewEngine(store ConversationStore, detector *RedFlagDetector, rules *RulesEngine, reasoner *Reasoner, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("triage: conversation store cannot be nil")
	}
	if detector == nil {
		panic("triage: red flag detector cannot be nil")
	}
	if rules == nil {
		panic("triage: rules engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		store:    store,
		detector: detector,
		rules:    rules,
		reasoner: reasoner,
		logger:   logger,
		events:   NewEventLogger(logger),
		cfg: EngineConfig{
			ForceTriageTurns:  defaultForceTriageTurns,
			ClarifyAfterTurns: defaultClarifyAfterTurns,
		},
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartConversation opens a new conversation, emits the fixed greeting, and
// moves the stage from greeting to collecting.
func (e *Engine) StartConversation(ctx context.Context) (*StartResponse, error) {
	conv, err := e.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("triage: failed to create conversation: %w", err)
	}
	if err := e.store.AppendMessage(ctx, conv.ID, RoleAssistant, greetingMessage); err != nil {
		return nil, err
	}
	if err := e.store.SetStage(ctx, conv.ID, StageCollecting); err != nil {
		return nil, err
	}

	e.events.ConversationStarted(ctx, conv.ID)
	return &StartResponse{
		ConversationID: conv.ID,
		Greeting:       greetingMessage,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// GetConversation returns the current conversation state. It takes the same
// per-conversation lock as ProcessMessage, so a reader never observes a
// half-applied turn while the LLM call is in flight.
func (e *Engine) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	unlock := e.locks.Lock(conversationID)
	defer unlock()
	return e.store.Get(ctx, conversationID)
}

// ProcessMessage runs one patient turn through the layered pipeline. The
// per-conversation lock is held across the whole turn, including the LLM
// await, so state changes appear atomically to any reader.
func (e *Engine) ProcessMessage(ctx context.Context, conversationID, text string) (*TurnResponse, error) {
	ctx, span := engineTracer.Start(ctx, "triage.process_message")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	unlock := e.locks.Lock(conversationID)
	defer unlock()

	conv, err := e.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// A finalized conversation is immutable: return the stored assessment
	// without re-invoking any layer.
	if conv.Stage == StageComplete {
		return &TurnResponse{
			ConversationID: conv.ID,
			Message:        completionReminder(conv.Assessment),
			Stage:          StageComplete,
			IsComplete:     true,
			Assessment:     conv.Assessment,
			Timestamp:      time.Now().UTC(),
		}, nil
	}

	e.events.MessageReceived(ctx, conv.ID, conv.Stage, text)
	if err := e.store.AppendMessage(ctx, conv.ID, RoleUser, text); err != nil {
		return nil, err
	}

	partial := ExtractCollectedData(text)
	if err := e.store.MergeCollectedData(ctx, conv.ID, partial); err != nil {
		return nil, err
	}
	conv, err = e.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	trail := NewAuditTrail()

	// Layer 1: red-flag keyword detection always runs first.
	flags := e.detector.Detect(ctx, text, conv.Collected.AgeYears)
	if len(flags.Matches) == 0 {
		trail.Record(AuditLayerKeyword, "scan", "no red flags matched")
	} else {
		for _, m := range flags.Matches {
			trail.Record(AuditLayerKeyword, "match", fmt.Sprintf("%s (floor %s, evidence %q)", m.ID, m.MinimumCategory, m.Evidence))
			e.metrics.ObserveRedFlag(m.ID)
		}
		e.events.RedFlagDetected(ctx, conv.ID, flags.Matches, flags.Floor.Category)
	}

	// Layer 2: clinical rules tighten the floor from structured data.
	floor := e.rules.Evaluate(conv.Collected, flags.Floor)
	if len(floor.Alerts) == 0 {
		trail.Record(AuditLayerClinical, "evaluate", "no thresholds breached")
	} else {
		for _, a := range floor.Alerts {
			trail.Record(AuditLayerClinical, "alert", fmt.Sprintf("[%s/%s] %s", a.Kind, a.Severity, a.Message))
		}
		e.events.RulesEscalated(ctx, conv.ID, floor)
	}
	span.SetAttributes(attribute.Bool("triage.has_floor", floor.HasFloor))

	// Red flags alone justify finalizing: the floor does not depend on the
	// LLM, so the model is bypassed rather than awaited.
	if len(flags.Matches) > 0 {
		candidate := shortCircuitCandidate(floor)
		return e.finalize(ctx, conv, candidate, floor, trail)
	}

	// Layer 3: LLM reasoning.
	candidate, llmErr := e.classify(ctx, conv, floor, trail)
	if llmErr != nil {
		if !floor.HasFloor {
			// Never hang and never surface provider errors to the
			// patient: hold the stage and invite a retry next turn.
			e.events.LLMFailed(ctx, conv.ID, llmErr)
			if err := e.store.AppendMessage(ctx, conv.ID, RoleAssistant, retryPrompt); err != nil {
				return nil, err
			}
			return &TurnResponse{
				ConversationID: conv.ID,
				Message:        retryPrompt,
				Stage:          conv.Stage,
				IsComplete:     false,
				Timestamp:      time.Now().UTC(),
			}, nil
		}
		// A deterministic floor exists; classify locally instead of
		// depending on the provider.
		candidate = FallbackCandidate(floor, "llm unavailable")
		trail.Record(AuditLayerLLM, "fallback", "provider unavailable, floor-derived candidate")
	}

	userTurns := conv.UserTurnCount()
	shouldFinalize := candidate.ReadyToTriage ||
		userTurns >= e.cfg.ForceTriageTurns ||
		HasCriticalAlert(floor)

	if !shouldFinalize {
		return e.continueDialogue(ctx, conv, candidate, userTurns)
	}

	if !candidate.ReadyToTriage && userTurns >= e.cfg.ForceTriageTurns {
		e.events.ForcedProgression(ctx, conv.ID, userTurns)
		trail.Record(AuditLayerSafety, "force", fmt.Sprintf("finalizing after %d patient turns", userTurns))
	}
	return e.finalize(ctx, conv, candidate, floor, trail)
}

// classify invokes the reasoning adapter and records its audit entry.
func (e *Engine) classify(ctx context.Context, conv *Conversation, floor GuardrailsFloor, trail *AuditTrail) (Candidate, error) {
	if e.reasoner == nil {
		return Candidate{}, fmt.Errorf("%w: no llm adapter configured", ErrExternalService)
	}

	started := time.Now()
	candidate, err := e.reasoner.Classify(ctx, conv, floor)
	elapsed := time.Since(started)
	if err != nil {
		e.metrics.ObserveLLMFailure()
		e.metrics.ObserveLLMLatency("error", elapsed.Seconds())
		return Candidate{}, err
	}

	outcome := "ok"
	step := "classify"
	if candidate.Fallback {
		outcome = "fallback"
		step = "fallback"
	}
	e.metrics.ObserveLLMLatency(outcome, elapsed.Seconds())
	trail.Record(AuditLayerLLM, step,
		fmt.Sprintf("candidate %s (confidence %.2f, ready %t)", candidate.Category, candidate.Confidence, candidate.ReadyToTriage))
	e.events.LLMClassified(ctx, conv.ID, candidate, elapsed.Milliseconds())
	return candidate, nil
}

// finalize runs the safety envelope and transitions the conversation through
// triaging to complete. Every assessment path ends here.
func (e *Engine) finalize(ctx context.Context, conv *Conversation, candidate Candidate, floor GuardrailsFloor, trail *AuditTrail) (*TurnResponse, error) {
	if err := e.store.SetStage(ctx, conv.ID, StageTriaging); err != nil {
		return nil, err
	}

	assessment, err := Finalize(candidate, floor, trail)
	if err != nil {
		e.logger.Error("safety envelope rejected assessment",
			"conversation_id", conv.ID,
			"error", err,
		)
		return nil, err
	}

	if err := e.store.SetAssessment(ctx, conv.ID, assessment); err != nil {
		return nil, err
	}
	if err := e.store.SetStage(ctx, conv.ID, StageComplete); err != nil {
		return nil, err
	}

	reply := completionMessage(assessment)
	if err := e.store.AppendMessage(ctx, conv.ID, RoleAssistant, reply); err != nil {
		return nil, err
	}

	userTurns := conv.UserTurnCount()
	e.metrics.ObserveAssessment(assessment.Category.String(), assessment.WasEscalated, userTurns)
	e.events.SafetyFinalized(ctx, conv.ID, assessment)

	if e.archive != nil {
		if err := e.archive.Save(ctx, conv, assessment); err != nil {
			// The assessment is already final; archiving is best effort.
			e.logger.Warn("failed to archive assessment",
				"conversation_id", conv.ID,
				"error", err,
			)
		}
	}

	return &TurnResponse{
		ConversationID: conv.ID,
		Message:        reply,
		Stage:          StageComplete,
		IsComplete:     true,
		Assessment:     assessment,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// continueDialogue keeps the conversation going with the model's follow-up
// question, moving to clarifying once enough turns have passed.
func (e *Engine) continueDialogue(ctx context.Context, conv *Conversation, candidate Candidate, userTurns int) (*TurnResponse, error) {
	stage := StageCollecting
	if userTurns >= e.cfg.ClarifyAfterTurns {
		stage = StageClarifying
	}
	if stage != conv.Stage {
		if err := e.store.SetStage(ctx, conv.ID, stage); err != nil {
			return nil, err
		}
	}

	reply := candidate.FollowUp
	if reply == "" {
		reply = clarifyingPrompt
	}
	if err := e.store.AppendMessage(ctx, conv.ID, RoleAssistant, reply); err != nil {
		return nil, err
	}

	return &TurnResponse{
		ConversationID: conv.ID,
		Message:        reply,
		Stage:          stage,
		IsComplete:     false,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// shortCircuitCandidate stands in for the LLM when red flags alone justify
// the category. It mirrors the floor so the safety envelope fuses to exactly
// the floor category.
func shortCircuitCandidate(floor GuardrailsFloor) Candidate {
	reasons := make([]string, 0, len(floor.RedFlags))
	for _, rf := range floor.RedFlags {
		reasons = append(reasons, rf.DisplayName)
	}
	return Candidate{
		Category:      floor.Category,
		Confidence:    escalatedConfidence,
		Reasoning:     "Red-flag presentation: " + strings.Join(reasons, "; "),
		ReadyToTriage: true,
	}
}

func completionMessage(assessment *FinalAssessment) string {
	var sb strings.Builder
	switch assessment.Category {
	case CategoryResuscitation, CategoryEmergency:
		sb.WriteString("Based on what you've told me, you should seek emergency care immediately. ")
	case CategoryUrgent:
		sb.WriteString("Based on what you've told me, you should be seen by a clinician soon. ")
	default:
		sb.WriteString("Thank you. Based on what you've told me, a clinician will review your case. ")
	}
	if len(assessment.Recommendations) > 0 {
		sb.WriteString(assessment.Recommendations[0])
		sb.WriteString(". ")
	}
	sb.WriteString("A member of our clinical team will take it from here.")
	return sb.String()
}

func completionReminder(assessment *FinalAssessment) string {
	if assessment == nil {
		return "This conversation has been handed to our clinical team."
	}
	return "Your assessment is complete and has been handed to our clinical team. " +
		"Please start a new conversation if something has changed."
}

// IsNotFound reports whether err is the unknown-conversation error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
