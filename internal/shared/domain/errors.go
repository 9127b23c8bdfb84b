package domain

import (
	"errors"
	"sort"
	"strings"
)

// Kind classifies an error for the transport edge.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindUnauthenticated
	KindPaymentRequired
	KindExternal
)

// Error is a sentinel error with a transport-independent classification.
// Context packages declare their sentinels with NewError.
type Error struct {
	kind Kind
	msg  string
}

// NewError creates a classified sentinel error.
func NewError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// ValidationError reports field-level input problems.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a field problem.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// OrNil returns nil when no field problems were recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Kind returns KindValidation.
func (e *ValidationError) Kind() Kind { return KindValidation }

type kinded interface {
	Kind() Kind
}

// KindOf returns the classification of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}
