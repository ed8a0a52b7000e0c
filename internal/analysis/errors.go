package analysis

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a stage failure at the stage boundary so the retry
// handler does not have to pattern-match error strings from third-party
// libraries.
type ErrorKind string

// Stage error kinds.
const (
	KindTimeout  ErrorKind = "timeout"
	KindNetwork  ErrorKind = "network"
	KindDNS      ErrorKind = "dns"
	KindUpstream ErrorKind = "upstream"
	KindInternal ErrorKind = "internal"
)

// Retryable reports whether the kind is a transient failure worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindDNS:
		return true
	default:
		return false
	}
}

// StageError wraps a failure from a required pipeline stage with its
// classification.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

// NewStageError builds a classified stage failure.
func NewStageError(stage string, kind ErrorKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Stage, e.Err, e.Kind)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or KindInternal when err is not
// a StageError.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
