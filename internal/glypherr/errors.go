// Package glypherr defines the transport-neutral error kinds shared by every
// gateway component and their mapping onto HTTP status codes.
package glypherr

import (
	"errors"
	"net/http"
)

// Kind identifies one of the error categories the gateway surfaces to
// callers. Replication failures (peer gossip, DHT publish) never produce a
// Kind; they are logged and swallowed at the call site.
type Kind int

const (
	// KindNone indicates no classified error (used internally, never set on
	// a Error value).
	KindNone Kind = iota
	KindInvalidAddress
	KindInsufficientBalance
	KindNoNodes
	KindUpstreamNodeError
	KindBadCountersignature
	KindNotFound
	KindForbidden
	KindBadSignature
	KindOutOfRange
	KindPaymentRequired
	KindEmptyEpoch
)

// Error is a classified, wrapped error carrying enough information for an
// HTTP handler to pick a status code without string-matching messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with a static message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, walking the unwrap chain. Returns
// KindNone if err is nil or carries no classification.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindNone
}

// HTTPStatus maps a Kind onto its HTTP status code. Kinds with no HTTP
// surface (KindNone) map to 500 as a safe default.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidAddress:
		return http.StatusBadRequest
	case KindInsufficientBalance, KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindNoNodes:
		return http.StatusServiceUnavailable
	case KindUpstreamNodeError:
		return http.StatusBadGateway
	case KindBadCountersignature:
		return http.StatusInternalServerError
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadSignature:
		return http.StatusBadRequest
	case KindOutOfRange:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors for conditions that do not need a dynamic message.
var (
	ErrNoNodes             = New(KindNoNodes, "No nodes registered")
	ErrInsufficientBalance = New(KindInsufficientBalance, "insufficient balance")
	ErrBadCountersignature = New(KindBadCountersignature, "receipt countersignature invalid")
	ErrNotFound            = New(KindNotFound, "not found")
	ErrForbidden           = New(KindForbidden, "signer not in validator set")
	ErrBadSignature        = New(KindBadSignature, "signature verification failed")
	ErrOutOfRange          = New(KindOutOfRange, "value out of range")
	ErrInvalidAddress      = New(KindInvalidAddress, "invalid eth address")
	ErrEmptyEpoch          = New(KindEmptyEpoch, "no receipts in window")
)
