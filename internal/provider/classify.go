package provider

import (
	"context"
	"errors"
	"net"

	"github.com/siteintel/analyzer/internal/analysis"
)

// CallError lets a Caller pre-classify its failure.
type CallError struct {
	Kind analysis.FailureKind
	Err  error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the wrapped cause.
func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError wraps err with an explicit failure category.
func NewCallError(kind analysis.FailureKind, err error) *CallError {
	return &CallError{Kind: kind, Err: err}
}

// Classify maps an error from a Caller onto the failure taxonomy.
// Pre-classified CallErrors win; deadline expiry is a timeout; net
// errors are network failures; everything else is a provider error.
func Classify(err error) analysis.FailureKind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return analysis.FailureTimeout
		}
		return analysis.FailureNetwork
	}
	return analysis.FailureProvider
}
