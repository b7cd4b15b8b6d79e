// Package apierr defines the closed set of error kinds every engine in this
// service raises, and a single adapter that maps them to HTTP status codes.
//
// Grounded on pkg/api/errors.go's mapServiceError in the teacher repo: one
// function, one switch over sentinel/typed errors, never a per-handler
// ad-hoc status code.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for errors.Is comparisons where no extra context is needed.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrNotCancellable = errors.New("operation not permitted in current state")
	ErrAlreadyExists  = errors.New("resource already exists")
)

// ValidationError reports a rejected identifier, query, limit, or predicate.
// Never retried; always a 4xx with a single-line reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NewValidation builds a ValidationError from a format string.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UnsafeQueryError reports a query that parsed but failed the read-only
// check (§7 "Unsafe").
type UnsafeQueryError struct {
	Reason string
}

func (e *UnsafeQueryError) Error() string { return e.Reason }

// ExternalError reports an LLM or vector backend failure or timeout. The
// caller (classifier, NL→SQL, synthesis) decides how to degrade; this type
// only carries the failure for logging/notes.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ExternalError) Unwrap() error { return e.Err }

// StorageError reports a relational or vector store I/O failure. Always a
// 5xx, never retried automatically.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Map converts an engine error into an HTTP status code and a client-facing
// message, the single adapter required by §7.
func Map(err error) (status int, message string) {
	if err == nil {
		return http.StatusOK, ""
	}

	var validErr *ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}

	var unsafeErr *UnsafeQueryError
	if errors.As(err, &unsafeErr) {
		return http.StatusBadRequest, unsafeErr.Error()
	}

	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound, "resource not found"
	}
	if errors.Is(err, ErrNotCancellable) {
		return http.StatusConflict, "operation not permitted in current state"
	}
	if errors.Is(err, ErrAlreadyExists) {
		return http.StatusConflict, "resource already exists"
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return http.StatusInternalServerError, "internal storage error"
	}

	var externalErr *ExternalError
	if errors.As(err, &externalErr) {
		return http.StatusBadGateway, "upstream service unavailable"
	}

	return http.StatusInternalServerError, "internal server error"
}
