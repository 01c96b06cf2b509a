// Package apperr holds the error taxonomy shared by the coordinator and its
// collaborators. Handlers map these to HTTP statuses and notifications.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError reports missing or invalid user input.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("missing or invalid fields: %s", strings.Join(e.Fields, ", "))
	}
	return e.Message
}

// Validation builds a ValidationError, or returns nil when no field failed.
func Validation(fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// Invalid builds a ValidationError with a free-form message.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// LocationError means no usable fix or detection is available.
type LocationError struct {
	Reason string
	Err    error
}

func (e *LocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location unavailable: %s: %v", e.Reason, e.Err)
	}
	return "location unavailable: " + e.Reason
}

func (e *LocationError) Unwrap() error { return e.Err }

// NotFoundError means an id no longer refers to anything.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvariantViolation rejects an operation outright, with no partial effect.
type InvariantViolation struct {
	Rule string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Rule
}

// RemoteError wraps a failed remote store call.
type RemoteError struct {
	Op     string
	Entity string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("remote %s %s failed", e.Op, e.Entity)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Remote wraps err as a RemoteError, leaving nil untouched.
func Remote(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Entity: entity, Err: err}
}

// DependencyUnavailable means a collaborator did not become ready in time.
type DependencyUnavailable struct {
	Name string
	Wait time.Duration
}

func (e *DependencyUnavailable) Error() string {
	return fmt.Sprintf("%s not ready after %v", e.Name, e.Wait)
}

// Kind names the taxonomy bucket of err, or "internal".
func Kind(err error) string {
	var (
		ve *ValidationError
		le *LocationError
		ne *NotFoundError
		iv *InvariantViolation
		re *RemoteError
		du *DependencyUnavailable
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &le):
		return "location"
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &iv):
		return "invariant"
	case errors.As(err, &re):
		return "remote"
	case errors.As(err, &du):
		return "dependency"
	default:
		return "internal"
	}
}
