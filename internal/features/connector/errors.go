package connector

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a sync failure for retry eligibility. Transient
// failures stay retryable until the line's budget is exhausted; permanent
// failures are recorded but never retried automatically.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// SyncError wraps an adapter failure with its retry classification.
type SyncError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func Transient(op string, err error) *SyncError {
	return &SyncError{Kind: KindTransient, Op: op, Err: err}
}

func Permanent(op string, err error) *SyncError {
	return &SyncError{Kind: KindPermanent, Op: op, Err: err}
}

// KindOf returns the classification of err, defaulting to transient so that
// unclassified failures are retried until the budget runs out rather than
// silently dropped.
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}
