package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConversationStore persists conversation state between turns. The engine
// serializes access per conversation id, so implementations only need to be
// safe for concurrent use across different ids.
type ConversationStore interface {
	Create(ctx context.Context) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	AppendMessage(ctx context.Context, id, role, content string) error
	MergeCollectedData(ctx context.Context, id string, partial CollectedData) error
	SetStage(ctx context.Context, id string, stage Stage) error
	SetAssessment(ctx context.Context, id string, assessment *FinalAssessment) error
}

// MemoryStore is the default in-process ConversationStore.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		now:           time.Now,
	}
}

// Create opens a new conversation in the greeting stage.
func (s *MemoryStore) Create(_ context.Context) (*Conversation, error) {
	now := s.now().UTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Stage:     StageGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	return cloneConversation(conv), nil
}

// Get returns a copy of the conversation or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	conv, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneConversation(conv), nil
}

// AppendMessage adds a transcript entry.
func (s *MemoryStore) AppendMessage(_ context.Context, id, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now().UTC()
	conv.Messages = append(conv.Messages, Message{Role: role, Content: content, Timestamp: now})
	conv.UpdatedAt = now
	return nil
}

// MergeCollectedData folds a partial extraction into the conversation.
func (s *MemoryStore) MergeCollectedData(_ context.Context, id string, partial CollectedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	conv.Collected.Merge(partial)
	conv.UpdatedAt = s.now().UTC()
	return nil
}

// SetStage transitions the conversation stage.
func (s *MemoryStore) SetStage(_ context.Context, id string, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	conv.Stage = stage
	conv.UpdatedAt = s.now().UTC()
	return nil
}

// SetAssessment stores the final assessment exactly once.
func (s *MemoryStore) SetAssessment(_ context.Context, id string, assessment *FinalAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if conv.Assessment != nil {
		return fmt.Errorf("%w: assessment already set for %s", ErrInvariantViolation, id)
	}
	conv.Assessment = assessment
	conv.UpdatedAt = s.now().UTC()
	return nil
}

// cloneConversation deep-copies via JSON so callers never alias store state.
func cloneConversation(conv *Conversation) *Conversation {
	data, err := json.Marshal(conv)
	if err != nil {
		return nil
	}
	var out Conversation
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}
