package triage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssessmentArchive persists completed assessments to PostgreSQL for
// long-term review. Writes are best-effort after the conversation has already
// completed; a nil archive is a valid no-op.
type AssessmentArchive struct {
	db *sql.DB
}

// NewAssessmentArchive creates an archive over the given database handle.
func NewAssessmentArchive(db *sql.DB) *AssessmentArchive {
	if db == nil {
		return nil
	}
	return &AssessmentArchive{db: db}
}

// ArchivedAssessment is one row of the triage_assessments table.
type ArchivedAssessment struct {
	ID               uuid.UUID
	ConversationID   string
	Category         string
	Confidence       float64
	WasEscalated     bool
	EscalationReason string
	RedFlagCount     int
	AlertCount       int
	UserTurns        int
	AuditTrail       []AuditEntry
	CreatedAt        time.Time
}

// Save inserts the completed assessment. Idempotent per conversation id.
func (a *AssessmentArchive) Save(ctx context.Context, conv *Conversation, assessment *FinalAssessment) error {
	if a == nil || a.db == nil {
		return nil
	}
	if conv == nil || assessment == nil {
		return nil
	}

	trail, err := json.Marshal(assessment.AuditTrail)
	if err != nil {
		return fmt.Errorf("triage: failed to marshal audit trail: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO triage_assessments (
			id, conversation_id, category, confidence, was_escalated,
			escalation_reason, red_flag_count, alert_count, user_turns,
			audit_trail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (conversation_id) DO NOTHING
	`, uuid.New(), conv.ID, assessment.Category.String(), assessment.Confidence,
		assessment.WasEscalated, assessment.EscalationReason,
		len(assessment.RedFlags), len(assessment.Alerts), conv.UserTurnCount(),
		trail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("triage: failed to archive assessment: %w", err)
	}
	return nil
}

// Get retrieves an archived assessment by conversation id, or nil when absent.
func (a *AssessmentArchive) Get(ctx context.Context, conversationID string) (*ArchivedAssessment, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}

	var rec ArchivedAssessment
	var trail []byte
	err := a.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, category, confidence, was_escalated,
			   COALESCE(escalation_reason, ''), red_flag_count, alert_count,
			   user_turns, audit_trail, created_at
		FROM triage_assessments
		WHERE conversation_id = $1
	`, conversationID).Scan(
		&rec.ID, &rec.ConversationID, &rec.Category, &rec.Confidence,
		&rec.WasEscalated, &rec.EscalationReason, &rec.RedFlagCount,
		&rec.AlertCount, &rec.UserTurns, &trail, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("triage: failed to load archived assessment: %w", err)
	}

	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &rec.AuditTrail); err != nil {
			return nil, fmt.Errorf("triage: failed to decode audit trail: %w", err)
		}
	}
	return &rec, nil
}

// CountEscalated returns how many archived assessments were escalated since
// the given time. Used by operational dashboards.
func (a *AssessmentArchive) CountEscalated(ctx context.Context, since time.Time) (int, error) {
	if a == nil || a.db == nil {
		return 0, nil
	}

	var count int
	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM triage_assessments
		WHERE was_escalated = TRUE AND created_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("triage: failed to count escalations: %w", err)
	}
	return count, nil
}
