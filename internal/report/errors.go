package report

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an analysis failed.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindIoError
	KindDecodeError
	KindNoMatchingEntries
	KindCircuitOpen
	KindProviderAuth
	KindProviderBadRequest
	KindProviderRateLimit
	KindProviderServer
	KindNetwork
	KindTimeout
	KindSerializationError
)

var kindNames = map[ErrorKind]string{
	KindInternal:           "internal",
	KindInvalidInput:       "invalid_input",
	KindIoError:            "io_error",
	KindDecodeError:        "decode_error",
	KindNoMatchingEntries:  "no_matching_entries",
	KindCircuitOpen:        "circuit_open",
	KindProviderAuth:       "provider_auth",
	KindProviderBadRequest: "provider_bad_request",
	KindProviderRateLimit:  "provider_rate_limit",
	KindProviderServer:     "provider_server",
	KindNetwork:            "network",
	KindTimeout:            "timeout",
	KindSerializationError: "serialization_error",
}

// String returns the snake_case kind name.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "internal"
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsFatal reports whether retrying the same request cannot succeed.
func (k ErrorKind) IsFatal() bool {
	switch k {
	case KindProviderAuth, KindProviderBadRequest, KindInvalidInput,
		KindDecodeError, KindNoMatchingEntries:
		return true
	}
	return false
}

// Retryable reports whether the provider adapter may retry after this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindProviderRateLimit, KindProviderServer, KindNetwork, KindTimeout:
		return true
	}
	return false
}

// AnalysisError is the single error type surfaced by an analysis run.
type AnalysisError struct {
	Kind     ErrorKind
	Provider string // set for provider and breaker failures
	Err      error
}

// Error implements error.
func (e *AnalysisError) Error() string {
	prefix := e.Kind.String()
	if e.Provider != "" {
		prefix = fmt.Sprintf("%s (%s)", prefix, e.Provider)
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Errorf builds an AnalysisError of kind with a formatted cause. %w verbs
// are honoured.
func Errorf(kind ErrorKind, format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind to err. An err that already carries a kind is returned
// unchanged so the innermost classification wins.
func Wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	return &AnalysisError{Kind: kind, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
