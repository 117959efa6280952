package triage

import "errors"

var (
	// ErrNotFound indicates an unknown conversation id.
	ErrNotFound = errors.New("triage: conversation not found")

	// ErrEmptyMessage indicates a blank patient message was rejected before
	// any layer ran.
	ErrEmptyMessage = errors.New("triage: message is empty")

	// ErrExternalService indicates the LLM provider was unavailable or timed
	// out and no safe local fallback applied.
	ErrExternalService = errors.New("triage: external service unavailable")

	// ErrInvariantViolation indicates a safety invariant was broken, e.g. a
	// category outside the fixed domain reached the safety envelope. Fatal for
	// the assessment; never silently swallowed.
	ErrInvariantViolation = errors.New("triage: internal invariant violation")
)
