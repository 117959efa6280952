package triage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clinova/triage-engine/pkg/logging"
)

// TriageEvent is a structured event in the assessment lifecycle. All events
// share the same base fields for easy filtering/grep.
type TriageEvent struct {
	Time           string         `json:"time"`
	Event          string         `json:"event"`
	ConversationID string         `json:"conversation_id"`
	Stage          string         `json:"stage,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// EventLogger emits structured JSON events at each decision point in the
// triage flow. Designed for fast grep/filter debugging:
//
//	grep '"event":"red_flag_detected"' /var/log/app.log
//	grep '"conversation_id":"..."' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
}

// NewEventLogger creates a new triage event logger.
func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Log emits a structured triage event.
func (e *EventLogger) Log(_ context.Context, event, convID string, stage Stage, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := TriageEvent{
		Time:           time.Now().UTC().Format(time.RFC3339Nano),
		Event:          event,
		ConversationID: convID,
		Stage:          string(stage),
		Data:           data,
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

// Convenience methods for common events:

func (e *EventLogger) ConversationStarted(ctx context.Context, convID string) {
	e.Log(ctx, "conversation_started", convID, StageGreeting, nil)
}

func (e *EventLogger) MessageReceived(ctx context.Context, convID string, stage Stage, message string) {
	msg := message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	e.Log(ctx, "message_received", convID, stage, map[string]any{
		"message": msg,
	})
}

func (e *EventLogger) RedFlagDetected(ctx context.Context, convID string, flags []RedFlagMatch, floor Category) {
	ids := make([]string, 0, len(flags))
	for _, f := range flags {
		ids = append(ids, f.ID)
	}
	e.Log(ctx, "red_flag_detected", convID, StageTriaging, map[string]any{
		"flags": ids,
		"floor": floor.String(),
	})
}

func (e *EventLogger) RulesEscalated(ctx context.Context, convID string, floor GuardrailsFloor) {
	e.Log(ctx, "rules_escalated", convID, StageTriaging, map[string]any{
		"floor":       floor.Category.String(),
		"alert_count": len(floor.Alerts),
	})
}

func (e *EventLogger) LLMClassified(ctx context.Context, convID string, candidate Candidate, durationMs int64) {
	e.Log(ctx, "llm_classified", convID, StageTriaging, map[string]any{
		"category":    candidate.Category.String(),
		"confidence":  candidate.Confidence,
		"ready":       candidate.ReadyToTriage,
		"fallback":    candidate.Fallback,
		"duration_ms": durationMs,
	})
}

func (e *EventLogger) LLMFailed(ctx context.Context, convID string, err error) {
	e.Log(ctx, "llm_failed", convID, StageCollecting, map[string]any{
		"error": err.Error(),
	})
}

func (e *EventLogger) SafetyFinalized(ctx context.Context, convID string, assessment *FinalAssessment) {
	e.Log(ctx, "safety_finalized", convID, StageComplete, map[string]any{
		"category":  assessment.Category.String(),
		"escalated": assessment.WasEscalated,
		"reason":    assessment.EscalationReason,
	})
}

func (e *EventLogger) ForcedProgression(ctx context.Context, convID string, userTurns int) {
	e.Log(ctx, "forced_progression", convID, StageTriaging, map[string]any{
		"user_turns": userTurns,
	})
}

func (e *EventLogger) ErrorOccurred(ctx context.Context, convID, step string, err error) {
	e.Log(ctx, "error", convID, "", map[string]any{
		"step":  step,
		"error": err.Error(),
	})
}
