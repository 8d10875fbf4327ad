package domain

import (
	"errors"
	"fmt"
)

// The service layers return exactly four error classes across the API seam;
// transports map them to status codes and nothing else leaks out.

// ValidationError rejects bad input or an action a rule's configuration does
// not allow. Field names the offending input when one can be singled out.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Invalid builds a ValidationError for one field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Invalidf is Invalid with a formatted reason.
func Invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError covers absent records. A record owned by someone else is
// reported exactly like one that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError rejects writes against occurrences already in a terminal
// status (paid, skipped).
type ConflictError struct {
	Resource string
	ID       string
	Status   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is %s and cannot be modified", e.Resource, e.ID, e.Status)
}

func Conflict(resource, id string, status Status) error {
	return &ConflictError{Resource: resource, ID: id, Status: status}
}

// TransientStoreError wraps store faults the caller may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientStoreError; nil stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var v *ConflictError
	return errors.As(err, &v)
}

func IsTransient(err error) bool {
	var v *TransientStoreError
	return errors.As(err, &v)
}
