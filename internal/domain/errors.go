package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrNoActiveTurn    = errors.New("no active turn")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNoMessages      = errors.New("no messages provided")
	ErrUnknownRole     = errors.New("unknown message role")
	ErrMessageIndex    = errors.New("message index out of range")
	ErrNotUserMessage  = errors.New("only user messages can be edited")
	ErrInvalidTopK     = errors.New("top_k must be at least 1")
)

// ValidationError rejects input before any upstream call is made.
type ValidationError struct {
	Field string
	Err   error
}

// Invalid wraps err as a ValidationError on field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RetrievalError reports that the retrieval service could not supply context.
// Callers treat it as "no context" and keep going.
type RetrievalError struct {
	Status int
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("retrieval failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// UpstreamFormatError means an upstream answered 2xx with an unexpected shape.
type UpstreamFormatError struct {
	Source  string
	Snippet string
	Err     error
}

func (e *UpstreamFormatError) Error() string {
	return fmt.Sprintf("%s returned an unexpected payload: %v", e.Source, e.Err)
}

func (e *UpstreamFormatError) Unwrap() error { return e.Err }

// StreamTransportError ends a model stream early. Partial holds the text
// accumulated before the failure.
type StreamTransportError struct {
	Status  int
	Partial string
	Err     error
}

func (e *StreamTransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("model stream failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("model stream failed: %v", e.Err)
}

func (e *StreamTransportError) Unwrap() error { return e.Err }
