package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLMClient returns queued responses in order, capturing each request.
type fakeLLMClient struct {
	responses []string
	errs      []error
	calls     int
	lastReq   LLMRequest
}

func (f *fakeLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	idx := f.calls
	f.calls++
	f.lastReq = req

	if idx < len(f.errs) && f.errs[idx] != nil {
		return LLMResponse{}, f.errs[idx]
	}
	text := ""
	if idx < len(f.responses) {
		text = f.responses[idx]
	} else if len(f.responses) > 0 {
		text = f.responses[len(f.responses)-1]
	}
	return LLMResponse{Text: text, Usage: TokenUsage{TotalTokens: 42}}, nil
}

func testConversation(messages ...string) *Conversation {
	conv := &Conversation{ID: "conv-1", Stage: StageCollecting}
	for _, m := range messages {
		conv.Messages = append(conv.Messages, Message{Role: RoleUser, Content: m, Timestamp: time.Now()})
	}
	return conv
}

func TestReasoner_Classify_ParsesWellFormedResponse(t *testing.T) {
	client := &fakeLLMClient{responses: []string{
		`{"category": "urgent", "confidence": 0.82, "reasoning": "severe localized pain", "recommendations": ["see a doctor today"], "ready_to_triage": true, "follow_up_question": ""}`,
	}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	candidate, err := reasoner.Classify(context.Background(), testConversation("bad abdominal pain"), GuardrailsFloor{})
	require.NoError(t, err)

	assert.Equal(t, CategoryUrgent, candidate.Category)
	assert.InDelta(t, 0.82, candidate.Confidence, 0.001)
	assert.Equal(t, "severe localized pain", candidate.Reasoning)
	assert.Equal(t, []string{"see a doctor today"}, candidate.Recommendations)
	assert.True(t, candidate.ReadyToTriage)
	assert.False(t, candidate.Fallback)
}

func TestReasoner_Classify_StripsCodeFence(t *testing.T) {
	client := &fakeLLMClient{responses: []string{
		"```json\n{\"category\": \"emergency\", \"confidence\": 0.9, \"reasoning\": \"x\", \"ready_to_triage\": true}\n```",
	}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	candidate, err := reasoner.Classify(context.Background(), testConversation("chest tightness"), GuardrailsFloor{})
	require.NoError(t, err)
	assert.Equal(t, CategoryEmergency, candidate.Category)
	assert.False(t, candidate.Fallback)
}

func TestReasoner_Classify_ExtractsEmbeddedJSON(t *testing.T) {
	client := &fakeLLMClient{responses: []string{
		`Here is my assessment: {"category": "semi_urgent", "confidence": 0.6, "reasoning": "mild", "ready_to_triage": true} Hope that helps.`,
	}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	candidate, err := reasoner.Classify(context.Background(), testConversation("sore throat"), GuardrailsFloor{})
	require.NoError(t, err)
	assert.Equal(t, CategorySemiUrgent, candidate.Category)
}

func TestReasoner_Classify_MalformedOutputFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"plain prose", "I think the patient should see a doctor soon."},
		{"invalid json", `{"category": "urgent",`},
		{"unknown category", `{"category": "category 6", "confidence": 0.7, "ready_to_triage": true}`},
		{"empty response", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeLLMClient{responses: []string{tt.response}}
			reasoner := NewReasoner(client, ReasonerConfig{}, nil)

			candidate, err := reasoner.Classify(context.Background(), testConversation("hello"), GuardrailsFloor{})
			require.NoError(t, err)

			assert.True(t, candidate.Fallback)
			assert.Equal(t, CategorySemiUrgent, candidate.Category)
			assert.InDelta(t, 0.3, candidate.Confidence, 0.001)
			assert.True(t, candidate.ReadyToTriage)
			assert.NotEmpty(t, candidate.Reasoning)
		})
	}
}

func TestReasoner_Classify_FallbackRespectsFloor(t *testing.T) {
	client := &fakeLLMClient{responses: []string{"not json at all"}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	floor := GuardrailsFloor{Category: CategoryEmergency, HasFloor: true}
	candidate, err := reasoner.Classify(context.Background(), testConversation("chest pain"), floor)
	require.NoError(t, err)

	assert.True(t, candidate.Fallback)
	assert.Equal(t, CategoryEmergency, candidate.Category)
}

func TestReasoner_Classify_TransportErrorIsExternalService(t *testing.T) {
	client := &fakeLLMClient{errs: []error{errors.New("connection refused")}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	_, err := reasoner.Classify(context.Background(), testConversation("hello"), GuardrailsFloor{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalService)
}

func TestReasoner_Classify_FloorInSystemPrompt(t *testing.T) {
	client := &fakeLLMClient{responses: []string{
		`{"category": "emergency", "confidence": 0.9, "ready_to_triage": true}`,
	}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	floor := GuardrailsFloor{
		Category: CategoryEmergency,
		HasFloor: true,
		RedFlags: []RedFlagMatch{{ID: "chest_pain", DisplayName: "Chest pain", Evidence: "chest pain", MinimumCategory: CategoryEmergency}},
	}
	_, err := reasoner.Classify(context.Background(), testConversation("crushing chest pain"), floor)
	require.NoError(t, err)

	require.Len(t, client.lastReq.System, 2)
	assert.Contains(t, client.lastReq.System[1], `"emergency"`)
	assert.Contains(t, client.lastReq.System[1], "Chest pain")
}

func TestReasoner_Classify_SendsFullTranscript(t *testing.T) {
	client := &fakeLLMClient{responses: []string{
		`{"category": "non_urgent", "confidence": 0.8, "ready_to_triage": true}`,
	}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	conv := testConversation("first", "second")
	conv.Messages = append(conv.Messages, Message{Role: RoleAssistant, Content: "how long?"})

	_, err := reasoner.Classify(context.Background(), conv, GuardrailsFloor{})
	require.NoError(t, err)

	require.Len(t, client.lastReq.Messages, 3)
	assert.Equal(t, "first", client.lastReq.Messages[0].Content)
	assert.Equal(t, RoleAssistant, client.lastReq.Messages[2].Role)
}

func TestReasoner_Classify_ClampsConfidence(t *testing.T) {
	client := &fakeLLMClient{responses: []string{
		`{"category": "urgent", "confidence": 1.7, "ready_to_triage": true}`,
	}}
	reasoner := NewReasoner(client, ReasonerConfig{}, nil)

	candidate, err := reasoner.Classify(context.Background(), testConversation("pain"), GuardrailsFloor{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, candidate.Confidence)
}

func TestFallbackCandidate(t *testing.T) {
	c := FallbackCandidate(GuardrailsFloor{}, "test")
	assert.Equal(t, CategorySemiUrgent, c.Category)
	assert.True(t, c.Fallback)
	assert.Equal(t, "test", c.FallbackReason)

	c = FallbackCandidate(GuardrailsFloor{Category: CategoryResuscitation, HasFloor: true}, "test")
	assert.Equal(t, CategoryResuscitation, c.Category)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, extractJSONObject(`prefix {"a":1} suffix`))
	assert.Equal(t, "", extractJSONObject("no braces here"))
	assert.Equal(t, "", extractJSONObject(""))
}
