package triage

import (
	"context"
	"time"
)

// Service describes how the triage conversation engine behaves toward the
// API layer.
type Service interface {
	StartConversation(ctx context.Context) (*StartResponse, error)
	ProcessMessage(ctx context.Context, conversationID, text string) (*TurnResponse, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
}

// StartResponse is returned when a new conversation is opened.
type StartResponse struct {
	ConversationID string    `json:"conversation_id"`
	Greeting       string    `json:"greeting"`
	Timestamp      time.Time `json:"timestamp"`
}

// TurnResponse is the engine's answer to a single patient message.
type TurnResponse struct {
	ConversationID string           `json:"conversation_id"`
	Message        string           `json:"message"`
	Stage          Stage            `json:"stage"`
	IsComplete     bool             `json:"is_complete"`
	Assessment     *FinalAssessment `json:"final_assessment,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}
