// Package apperrors classifies failures crossing component boundaries so the
// API layer can map them to responses and the indexer can aggregate them.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure
type Kind string

const (
	KindUnknown       Kind = "internal"
	KindTransientNode Kind = "transient_node"
	KindStorage       Kind = "storage"
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
)

// Error is a classified failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// TransientNode wraps an RPC timeout or connectivity failure
func TransientNode(op string, err error) error {
	return newError(KindTransientNode, op, err)
}

// Storage wraps a persistence failure other than an absorbed duplicate
func Storage(op string, err error) error {
	return newError(KindStorage, op, err)
}

// Validation reports malformed caller input
func Validation(op, format string, args ...interface{}) error {
	return newError(KindValidation, op, fmt.Errorf(format, args...))
}

// Configuration reports missing or invalid startup parameters
func Configuration(op, format string, args ...interface{}) error {
	return newError(KindConfiguration, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the innermost human readable message of a classified error
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Err.Error()
	}
	return err.Error()
}
