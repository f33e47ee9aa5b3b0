// Package snrrerr defines the closed set of error kinds the SNRR surfaces
// to callers. Every component returns one of these instead of a bare
// error so the RPC retry loop (internal/rpc) and the failure accountant
// (internal/accountant) can decide what to do without re-parsing strings.
package snrrerr

import (
	"errors"
	"fmt"
)

// Kind partitions errors into four families: transport (including
// cancellation), HTTP status, cryptographic, and protocol.
type Kind int

const (
	// Transport-level failures, never retried with the same socket.
	KindTimeout Kind = iota
	KindCancelled
	KindNotReady
	KindInvalidURL
	KindInvalidJSON

	// HTTP status carried by a snode response; the failure accountant
	// interprets the code.
	KindHTTPStatus

	// Cryptographic failures.
	KindNoKeyPair
	KindSigningFailed
	KindDecryptionFailed
	KindHashingFailed
	KindValidationFailed

	// Protocol-level failures.
	KindInsufficientSnodes
	KindInconsistentSnodePools
	KindClockOutOfSync
	KindSnodePoolUpdatingFailed
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindNotReady:
		return "NotReady"
	case KindInvalidURL:
		return "InvalidUrl"
	case KindInvalidJSON:
		return "InvalidJson"
	case KindHTTPStatus:
		return "HttpStatus"
	case KindNoKeyPair:
		return "NoKeyPair"
	case KindSigningFailed:
		return "SigningFailed"
	case KindDecryptionFailed:
		return "DecryptionFailed"
	case KindHashingFailed:
		return "HashingFailed"
	case KindValidationFailed:
		return "ValidationFailed"
	case KindInsufficientSnodes:
		return "InsufficientSnodes"
	case KindInconsistentSnodePools:
		return "InconsistentSnodePools"
	case KindClockOutOfSync:
		return "ClockOutOfSync"
	case KindSnodePoolUpdatingFailed:
		return "SnodePoolUpdatingFailed"
	default:
		return "Generic"
	}
}

// Error is the single concrete type behind every SNRR error. Components
// never return a bare fmt.Errorf; they wrap through New/Wrap/HTTPStatus so
// callers can type-switch on Kind via errors.As.
type Error struct {
	Kind    Kind
	Status  int    // populated only for KindHTTPStatus
	Body    []byte // raw response body for KindHTTPStatus, if any
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("snrr: %s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("snrr: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("snrr: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kind-tagged error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap tags an underlying error with a kind, preserving it for errors.Is/As.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// HTTPStatus builds the KindHTTPStatus error the failure accountant keys
// its decision table on.
func HTTPStatus(status int, body []byte) *Error {
	return &Error{Kind: KindHTTPStatus, Status: status, Body: body}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning KindGeneric if err isn't
// a *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindGeneric
}

// Retryable reports whether the RPC surface (internal/rpc) should retry
// this error.
func Retryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Kind {
	case KindTimeout, KindNotReady, KindInvalidJSON:
		return true
	case KindHTTPStatus:
		switch se.Status {
		case 404, 500, 502, 503:
			return true
		}
		return false
	default:
		return false
	}
}
