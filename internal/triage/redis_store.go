package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const conversationTTL = 24 * time.Hour

// RedisStore is a ConversationStore backed by Redis with a rolling TTL.
// Retention beyond the TTL is owned by the deployment, not the engine. The
// engine's per-conversation lock serializes the read-modify-write cycles.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed conversation store.
func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("triage: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("triage.internal.store.redis")
	}
	return &RedisStore{redis: client, tracer: tracer}
}

func conversationKey(id string) string {
	return fmt.Sprintf("triage:conversation:%s", id)
}

// Create opens a new conversation in the greeting stage.
func (s *RedisStore) Create(ctx context.Context) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "triage.store.create")
	defer span.End()

	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Stage:     StageGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, conv); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return conv, nil
}

// Get loads a conversation or returns ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "triage.store.get")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("triage: failed to load conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("triage: failed to decode conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage adds a transcript entry.
func (s *RedisStore) AppendMessage(ctx context.Context, id, role, content string) error {
	return s.update(ctx, id, func(conv *Conversation) error {
		conv.Messages = append(conv.Messages, Message{
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})
		return nil
	})
}

// MergeCollectedData folds a partial extraction into the conversation.
func (s *RedisStore) MergeCollectedData(ctx context.Context, id string, partial CollectedData) error {
	return s.update(ctx, id, func(conv *Conversation) error {
		conv.Collected.Merge(partial)
		return nil
	})
}

// SetStage transitions the conversation stage.
func (s *RedisStore) SetStage(ctx context.Context, id string, stage Stage) error {
	return s.update(ctx, id, func(conv *Conversation) error {
		conv.Stage = stage
		return nil
	})
}

// SetAssessment stores the final assessment exactly once.
func (s *RedisStore) SetAssessment(ctx context.Context, id string, assessment *FinalAssessment) error {
	return s.update(ctx, id, func(conv *Conversation) error {
		if conv.Assessment != nil {
			return fmt.Errorf("%w: assessment already set for %s", ErrInvariantViolation, id)
		}
		conv.Assessment = assessment
		return nil
	})
}

func (s *RedisStore) update(ctx context.Context, id string, mutate func(*Conversation) error) error {
	ctx, span := s.tracer.Start(ctx, "triage.store.update")
	defer span.End()

	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := mutate(conv); err != nil {
		return err
	}
	conv.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, conv); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *RedisStore) save(ctx context.Context, conv *Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("triage: failed to marshal conversation: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conv.ID), data, conversationTTL).Err(); err != nil {
		return fmt.Errorf("triage: failed to persist conversation: %w", err)
	}
	return nil
}
