package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is wrapped into the final error once every attempt failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTimeout marks an attempt that did not get a response within the descriptor timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrNetwork marks a connection-level failure.
	ErrNetwork = errors.New("network error")

	// ErrHTTPStatus marks a non-2xx response.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrAborted marks a request cancelled by its caller. Aborted requests are never retried.
	ErrAborted = errors.New("request aborted")

	// ErrProtocol marks a malformed body or envelope.
	ErrProtocol = errors.New("protocol error")

	// ErrInFlight is returned by guarded helpers when the same form or button
	// already has a request outstanding.
	ErrInFlight = errors.New("request already in flight")
)

// FailureKind classifies a failed request.
type FailureKind string

const (
	// FailureTimeout represents an attempt that exceeded its timeout.
	FailureTimeout FailureKind = "timeout"

	// FailureHTTP represents a non-2xx response.
	FailureHTTP FailureKind = "http"

	// FailureNetwork represents transport errors.
	FailureNetwork FailureKind = "network"

	// FailureAborted represents caller cancellation.
	FailureAborted FailureKind = "aborted"

	// FailureProtocol represents an unparseable body or a malformed envelope.
	FailureProtocol FailureKind = "protocol"
)

func (k FailureKind) sentinel() error {
	switch k {
	case FailureTimeout:
		return ErrTimeout
	case FailureHTTP:
		return ErrHTTPStatus
	case FailureNetwork:
		return ErrNetwork
	case FailureAborted:
		return ErrAborted
	case FailureProtocol:
		return ErrProtocol
	default:
		return nil
	}
}

// RequestError is the failure outcome of Execute.
type RequestError struct {
	Kind       FailureKind
	StatusCode int
	Attempts   int
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s failure", e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s failure (status %d)", e.Kind, e.StatusCode)
	}
	if e.URL != "" {
		msg += " for " + e.URL
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As.
func (e *RequestError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// EnvelopeError is returned by the envelope helpers when the server answered
// with success=false.
type EnvelopeError struct {
	Message string
}

// Error implements the error interface.
func (e *EnvelopeError) Error() string {
	if e.Message == "" {
		return "server reported failure"
	}
	return e.Message
}

// KindOf returns the failure kind carried by err, or "" when err is not a RequestError.
func KindOf(err error) FailureKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return ""
}

// shouldRetry determines if a failure kind is subject to the retry budget.
func shouldRetry(kind FailureKind) bool {
	switch kind {
	case FailureTimeout, FailureNetwork, FailureHTTP:
		return true
	case FailureAborted:
		// caller-initiated cancellation is intentional
		return false
	default:
		return false
	}
}
