package relay

import (
	"errors"
	"fmt"
)

// ErrorKind is a machine-checkable classification of a relay failure.
type ErrorKind string

const (
	// ErrContractViolation marks a request the client refused to send,
	// e.g. both wire and host-function payloads supplied.
	ErrContractViolation ErrorKind = "contract_violation"

	// ErrRelayRejected is a non-2xx response. The relay's body text is
	// preserved verbatim in Body; it is never reinterpreted.
	ErrRelayRejected ErrorKind = "relay_rejected"

	// ErrSequenceConflict is a relay rejection caused by a stale sequence
	// number. Retryable after a fresh compile.
	ErrSequenceConflict ErrorKind = "sequence_conflict"

	// ErrRelayUnreachable covers transport failures and deadline expiry.
	ErrRelayUnreachable ErrorKind = "relay_unreachable"

	// ErrCancelled means the caller aborted the in-flight call. The relay
	// may already be processing the transaction, so the attempt is never
	// retried automatically.
	ErrCancelled ErrorKind = "cancelled"

	// ErrCreditsUnparseable means the info endpoint returned a credits
	// value that is not numeric. Never coerced to zero, since zero is a
	// valid "exhausted" state.
	ErrCreditsUnparseable ErrorKind = "credits_unparseable"

	// ErrClaimTokenExtraction means the claim response lacked the expected
	// token marker. The client does not guess.
	ErrClaimTokenExtraction ErrorKind = "claim_token_extraction_failed"

	// ErrMalformedResponse is a 2xx response missing required fields, such
	// as a submission success with no transaction hash.
	ErrMalformedResponse ErrorKind = "malformed_response"
)

// Error is the error type returned by the relay client.
type Error struct {
	Kind   ErrorKind
	Status int    // HTTP status, 0 for transport-level failures
	Body   string // response body verbatim, when one was read
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a fresh attempt (with a freshly compiled
// transaction) may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == ErrRelayUnreachable || e.Kind == ErrSequenceConflict
}

// AsRelayError unwraps err into a *Error if one is in its chain.
func AsRelayError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
