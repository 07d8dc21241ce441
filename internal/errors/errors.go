// Package errors provides the structured error kinds and stable client codes
// used by the library server.
//
// Every failure that reaches a client carries two identifiers: a Kind from the
// fixed taxonomy (what went wrong) and a Code that is stable per operation
// (where it went wrong). Resolvers wrap store failures with both:
//
//	count, err := s.CountBooks(ctx)
//	if err != nil {
//	    return 0, errors.Wrap(err, errors.KindStoreQueryFailed, errors.CodeBookCountFailed, "book count failed")
//	}
//
// Callers match on the kind with errors.Is:
//
//	if errors.Is(err, errors.ErrUnauthenticated) { ... }
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Kind is the failure category from the error taxonomy.
type Kind string

// Error kinds.
const (
	KindInputValidation  Kind = "INPUT_VALIDATION"
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindNotFound         Kind = "NOT_FOUND"
	KindStoreQueryFailed Kind = "STORE_QUERY_FAILED"
	KindMutationFailed   Kind = "MUTATION_FAILED"
	KindBatchFailed      Kind = "BATCH_FAILED"
	KindInternal         Kind = "INTERNAL"
)

// Code is the stable machine-readable code surfaced in GraphQL extensions.
type Code string

// Client-facing codes.
const (
	CodeBookCountFailed       Code = "BOOK_COUNT_FAILED"
	CodeAuthorCountFailed     Code = "AUTHOR_COUNT_FAILED"
	CodeAllBooksQueryFailed   Code = "ALL_BOOKS_QUERY_FAILED"
	CodeAllAuthorsQueryFailed Code = "ALL_AUTHORS_QUERY_FAILED"
	CodeBadUserInput          Code = "BAD_USER_INPUT"
	CodeAuthorNotFound        Code = "AUTHOR_NOT_FOUND"
	CodeAddBookFailed         Code = "ADD_BOOK_FAILED"
	CodeEditAuthorFailed      Code = "EDIT_AUTHOR_FAILED"
	CodeValidationFailed      Code = "GRAPHQL_VALIDATION_FAILED"
	CodeInternalServerError   Code = "INTERNAL_SERVER_ERROR"
)

// HTTPStatus returns the HTTP status used when a kind escapes the GraphQL
// envelope (plain REST endpoints, request-level failures).
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInputValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a structured error with a kind, a stable code, a message and
// optional details. The wrapped cause stays reachable through Unwrap.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	// InvalidArgs holds the rejected argument values, reported to clients
	// as extensions.invalidArgs.
	InvalidArgs any `json:"invalidArgs,omitempty"`
	cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the wrapped error, or nil.
func (e *Error) Cause() error {
	return e.cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithInvalidArgs returns a copy reporting args as the rejected values.
func (e *Error) WithInvalidArgs(args any) *Error {
	c := *e
	c.InvalidArgs = args
	return &c
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// WithCode returns a copy with a different client code.
func (e *Error) WithCode(code Code) *Error {
	c := *e
	c.Code = code
	return &c
}

// Sentinel errors for use with errors.Is().
var (
	ErrInputValidation  = &Error{Kind: KindInputValidation, Code: CodeBadUserInput, Message: "invalid input"}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated, Code: CodeBadUserInput, Message: "not authenticated"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrStoreQueryFailed = &Error{Kind: KindStoreQueryFailed, Message: "store query failed"}
	ErrMutationFailed   = &Error{Kind: KindMutationFailed, Message: "mutation failed"}
	ErrBatchFailed      = &Error{Kind: KindBatchFailed, Message: "batch load failed"}
	ErrInternal         = &Error{Kind: KindInternal, Code: CodeInternalServerError, Message: "internal error"}
)

// ValidationWithDetails creates an input validation error with field details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Kind: KindInputValidation, Code: CodeBadUserInput, Message: msg, Details: details}
}

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(code Code, msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: code, Message: msg}
}

// NotFound creates a not found error.
func NotFound(code Code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

// NotFoundf creates a not found error with a formatted message.
func NotFoundf(code Code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternalServerError, Message: msg}
}

// Wrap wraps err with a kind, code and message.
func Wrap(err error, kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, cause: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
