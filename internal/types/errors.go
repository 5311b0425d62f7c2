package types

import (
	"errors"
	"fmt"
)

// Error kinds. A *StageError matches its kind with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrExtraction    = errors.New("extraction error")
	ErrTranscription = errors.New("transcription error")
	ErrSummarization = errors.New("summarization error")
	ErrCancelled     = errors.New("job cancelled")
)

// StageError is a job-level failure tied to the stage that produced it.
// Diagnostic holds subprocess or provider output for logs only.
type StageError struct {
	Stage      Stage
	Kind       error
	Diagnostic string
	Err        error
}

// NewValidationError builds an intake failure.
func NewValidationError(format string, args ...any) *StageError {
	return &StageError{
		Stage: StageReceived,
		Kind:  ErrValidation,
		Err:   fmt.Errorf(format, args...),
	}
}

// Error formats the failure for logs.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the error kind.
func (e *StageError) Is(target error) bool {
	return e != nil && e.Kind == target
}

// PublicMessage returns the caller-facing text for err. Internal detail never leaks.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		var se *StageError
		if errors.As(err, &se) && se.Err != nil {
			return se.Err.Error()
		}
		return "invalid upload"
	case errors.Is(err, ErrExtraction):
		return "Failed to extract audio from the uploaded file"
	case errors.Is(err, ErrTranscription):
		return "Failed to transcribe audio"
	case errors.Is(err, ErrSummarization):
		return "Failed to summarize transcript"
	case errors.Is(err, ErrCancelled):
		return "Processing was cancelled"
	default:
		return "Failed to process file"
	}
}
