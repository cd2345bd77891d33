package utils

import (
	"errors"
	"fmt"
)

// Failure classes the telemetry pipeline distinguishes. Handlers branch on
// these with errors.Is rather than string matching.
var (
	// ErrMalformedInput marks payloads that cannot be parsed into a sample.
	// The record is dropped and logged; the stream continues.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInsufficientSamples marks a statistic that needs more finite
	// observations than the window holds.
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrDegenerateModel marks numerical degeneracy in the regression chain
	// that survived regularisation. The estimator instance is unusable.
	ErrDegenerateModel = errors.New("degenerate model")

	// ErrCorpusNotReady marks estimator use before the reference corpus
	// finished loading.
	ErrCorpusNotReady = errors.New("corpus not ready")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
