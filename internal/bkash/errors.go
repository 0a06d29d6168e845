package bkash

import (
	"errors"
	"fmt"
)

// ErrUnavailable is the sentinel callers check: any failure talking to the
// provider (transport, malformed payload, rejected request, missing token)
// matches it via errors.Is. The concrete wrapper types keep the cause
// distinguishable in logs and metrics.
var ErrUnavailable = errors.New("bkash: provider unavailable")

// ErrTokenUnavailable is returned when no bearer token could be obtained.
var ErrTokenUnavailable = fmt.Errorf("token could not be obtained: %w", ErrUnavailable)

// TransportError wraps network-level failures reaching the provider.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrUnavailable so callers keep the value-or-unavailable contract.
func (e *TransportError) Is(target error) bool { return target == ErrUnavailable }

// ProtocolError wraps malformed responses: non-JSON bodies or payloads
// missing fields the flow depends on.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol failure: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrUnavailable }

// BusinessError represents a well-formed provider response whose statusCode
// is anything other than the success literal.
type BusinessError struct {
	Op            string
	StatusCode    string
	StatusMessage string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: provider rejected request: statusCode=%s message=%q", e.Op, e.StatusCode, e.StatusMessage)
}

func (e *BusinessError) Is(target error) bool { return target == ErrUnavailable }
