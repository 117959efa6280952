package triage

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) (*AssessmentArchive, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAssessmentArchive(db), mock
}

func TestAssessmentArchive_Save(t *testing.T) {
	archive, mock := newTestArchive(t)

	conv := &Conversation{
		ID: "conv-1",
		Messages: []Message{
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "chest pain"},
		},
	}
	assessment := &FinalAssessment{
		Category:         CategoryEmergency,
		Confidence:       0.95,
		WasEscalated:     true,
		EscalationReason: "Chest pain",
		RedFlags:         []RedFlagMatch{{ID: "chest_pain"}},
		AuditTrail:       []AuditEntry{{Layer: AuditLayerKeyword, Step: "match"}},
		FinalizedAt:      time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO triage_assessments").
		WithArgs(
			sqlmock.AnyArg(), "conv-1", "emergency", 0.95, true,
			"Chest pain", 1, 0, 1,
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := archive.Save(context.Background(), conv, assessment)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentArchive_SaveNilInputsAreNoOps(t *testing.T) {
	archive, mock := newTestArchive(t)

	require.NoError(t, archive.Save(context.Background(), nil, &FinalAssessment{}))
	require.NoError(t, archive.Save(context.Background(), &Conversation{}, nil))

	var nilArchive *AssessmentArchive
	require.NoError(t, nilArchive.Save(context.Background(), &Conversation{}, &FinalAssessment{}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentArchive_Get(t *testing.T) {
	archive, mock := newTestArchive(t)

	trail, err := json.Marshal([]AuditEntry{{Layer: AuditLayerSafety, Step: "accept", Summary: "ok"}})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "conversation_id", "category", "confidence", "was_escalated",
		"escalation_reason", "red_flag_count", "alert_count", "user_turns",
		"audit_trail", "created_at",
	}).AddRow(
		uuid.NewString(), "conv-1", "urgent", 0.8, false,
		"", 0, 1, 3, trail, time.Now().UTC(),
	)

	mock.ExpectQuery("SELECT (.+) FROM triage_assessments").
		WithArgs("conv-1").
		WillReturnRows(rows)

	rec, err := archive.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "conv-1", rec.ConversationID)
	assert.Equal(t, "urgent", rec.Category)
	assert.Equal(t, 3, rec.UserTurns)
	require.Len(t, rec.AuditTrail, 1)
	assert.Equal(t, AuditLayerSafety, rec.AuditTrail[0].Layer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentArchive_GetAbsent(t *testing.T) {
	archive, mock := newTestArchive(t)

	mock.ExpectQuery("SELECT (.+) FROM triage_assessments").
		WithArgs("conv-missing").
		WillReturnError(sql.ErrNoRows)

	rec, err := archive.Get(context.Background(), "conv-missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentArchive_CountEscalated(t *testing.T) {
	archive, mock := newTestArchive(t)
	since := time.Now().Add(-24 * time.Hour).UTC()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := archive.CountEscalated(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewAssessmentArchive_NilDB(t *testing.T) {
	assert.Nil(t, NewAssessmentArchive(nil))
}
