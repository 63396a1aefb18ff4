// Package apierror provides the error taxonomy of the stock ledger and the
// standardized error envelope returned to clients. Every error leaving the
// core carries a stable Kind so the request layer can map it without parsing
// messages, and never leaks internal details (SQL, stack traces).
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers. Values are stable and part of the API.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindImmutability Kind = "immutability_violation"
	KindStorage      Kind = "storage"
	KindInternal     Kind = "internal"
	KindForbidden    Kind = "forbidden"
	kindUnclassified Kind = ""
)

// Error is the typed error returned by lifecycle operations.
// Details echoes the rejected identifiers/quantities for diagnosis.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// With returns a copy of e with an extra detail attached.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// Validation reports malformed or insufficient input. Never retried.
func Validation(op, msg string) *Error { return newError(KindValidation, op, msg, nil) }

// NotFound reports a missing or soft-deleted stock/batch/piece/transaction.
func NotFound(op, msg string) *Error { return newError(KindNotFound, op, msg, nil) }

// Conflict reports a lost race; the caller may retry with fresh reads.
func Conflict(op, msg string) *Error { return newError(KindConflict, op, msg, nil) }

// Immutability reports an attempt to change a write-once field.
func Immutability(op, msg string) *Error { return newError(KindImmutability, op, msg, nil) }

// Storage reports an unavailable or timed-out store. Retryable with backoff.
// The cause stays in Err for logs; clients only see the fixed message.
func Storage(op string, err error) *Error {
	return newError(KindStorage, op, "store unavailable", err)
}

// Forbidden reports a policy rejection made by the request layer.
func Forbidden(op, msg string) *Error { return newError(KindForbidden, op, msg, nil) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return kindUnclassified
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// IsRetryable reports whether the whole operation may be retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindStorage:
		return true
	}
	return false
}

// HTTPStatus maps a kind to the status code used by the request layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindImmutability:
		return http.StatusConflict
	case KindStorage:
		return http.StatusServiceUnavailable
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail  string         `json:"detail"`
	Kind    Kind           `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// FromError builds the envelope for err. Internal errors get a generic message.
func FromError(err error) *APIError {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return &APIError{Detail: e.Message, Kind: e.Kind, Details: e.Details}
	}
	return &APIError{Detail: "internal server error", Kind: KindInternal}
}

// ValidationError wraps multiple field errors produced by request binding.
type ValidationError struct {
	Detail string            `json:"detail"`
	Kind   Kind              `json:"kind"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Kind: KindValidation, Fields: fields}
}
