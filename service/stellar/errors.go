package stellar

import (
	"errors"
	"fmt"
)

// ErrorKind is a machine-checkable classification of a compile failure.
type ErrorKind string

const (
	// Local failures. These are detected before any network access and are
	// never retryable.
	ErrInvalidAddress       ErrorKind = "invalid_address"
	ErrInvalidAmount        ErrorKind = "invalid_amount"
	ErrMissingRequiredField ErrorKind = "missing_required_field"
	ErrUnsupportedAsset     ErrorKind = "unsupported_asset_reference"
	ErrMemoEncoding         ErrorKind = "memo_encoding_error"
	ErrUnknownIntentKind    ErrorKind = "unknown_intent_kind"

	// ErrSourceAccountLoad indicates the account-state lookup failed. The
	// caller may retry; a later attempt re-reads the sequence number.
	ErrSourceAccountLoad ErrorKind = "source_account_load_failed"
)

// CompileError is the error type returned by the compiler. It carries the
// classification, the intent field that triggered it (when one applies), and
// a human-readable detail string.
type CompileError struct {
	Kind   ErrorKind
	Field  string
	Detail string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class may succeed on a fresh attempt.
// Only account-load failures qualify; everything else is a defect in the
// intent itself.
func (e *CompileError) Retryable() bool {
	return e.Kind == ErrSourceAccountLoad
}

// AsCompileError unwraps err into a *CompileError if one is in its chain.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func compileErr(kind ErrorKind, field, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Field: field, Detail: fmt.Sprintf(format, args...)}
}

func compileErrWrap(kind ErrorKind, field string, err error, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Field: field, Detail: fmt.Sprintf(format, args...), Err: err}
}
