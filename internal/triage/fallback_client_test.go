package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackLLMClient_PrimarySucceeds(t *testing.T) {
	primary := &fakeLLMClient{responses: []string{"primary answer"}}
	fallback := &fakeLLMClient{responses: []string{"fallback answer"}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "primary answer", resp.Text)
	assert.Equal(t, 0, fallback.calls)
}

func TestFallbackLLMClient_FallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeLLMClient{errs: []error{errors.New("primary down")}}
	fallback := &fakeLLMClient{responses: []string{"fallback answer"}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackLLMClient_BothFail(t *testing.T) {
	primary := &fakeLLMClient{errs: []error{errors.New("primary down")}}
	fallback := &fakeLLMClient{errs: []error{errors.New("fallback down")}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	_, err := client.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback down")
}

func TestFallbackLLMClient_NoFallbackConfigured(t *testing.T) {
	primary := &fakeLLMClient{errs: []error{errors.New("primary down")}}
	client := NewFallbackLLMClient(primary, nil, nil)

	_, err := client.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
}
