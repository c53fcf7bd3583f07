// Package gatewayerr defines the error kinds shared by every retrieval tier,
// the chunk assembler, the peer manager and the admission gate.
package gatewayerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the category of failure a retrieval, assembly, or
// admission operation reports.
type Kind string

const (
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindNotFound          Kind = "not_found"
	KindUnsatisfiable     Kind = "unsatisfiable"
	KindUpstreamTransient Kind = "upstream_transient"
	KindUpstreamTerminal  Kind = "upstream_terminal"
	KindChunkValidation   Kind = "chunk_validation"
	KindClientDisconnect  Kind = "client_disconnect"
	KindTimeout           Kind = "timeout"
	KindPaymentRequired   Kind = "payment_required"
	KindRateLimited       Kind = "rate_limited"
	KindPayloadTooLarge   Kind = "payload_too_large"
)

// Error is the typed error carried through the retrieval pipeline. It wraps
// an optional cause and records whether the caller should try the next
// candidate (Retryable) rather than surface the failure.
type Error struct {
	Kind      Kind
	Message   string
	Source    string // upstream/tier identifier, e.g. a gateway URL or peer id
	Retryable bool
	Cause     error
	At        time.Time
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s (source: %s)", e.Kind, e.Message, e.Source)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, At: time.Now(), Retryable: retryableByDefault(kind)}
}

// Wrap builds an Error of the given kind around cause.
func Wrap(kind Kind, message, source string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Source:    source,
		Cause:     cause,
		At:        time.Now(),
		Retryable: retryableByDefault(kind),
	}
}

func retryableByDefault(kind Kind) bool {
	switch kind {
	case KindUpstreamTransient, KindChunkValidation, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// IsRetryable reports whether the composite cascade should advance to the
// next candidate rather than surface err.
func IsRetryable(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// Stats accumulates error counts per kind and per source, mirroring the
// per-component telemetry every retrieval tier keeps.
type Stats struct {
	ByKind       map[Kind]uint64
	BySource     map[string]uint64
	LastError    *Error
	LastErrorAt  time.Time
	TotalErrors  uint64
}

// NewStats returns an empty Stats tracker.
func NewStats() *Stats {
	return &Stats{ByKind: make(map[Kind]uint64), BySource: make(map[string]uint64)}
}

// Record adds err to the tracked statistics. Non-*Error values are counted
// under KindUpstreamTransient, since that's the default classification an
// unclassified upstream failure receives at the tier boundary.
func (s *Stats) Record(err error) {
	if err == nil {
		return
	}
	var ge *Error
	if !errors.As(err, &ge) {
		ge = &Error{Kind: KindUpstreamTransient, Message: err.Error(), Cause: err, At: time.Now()}
	}
	s.ByKind[ge.Kind]++
	if ge.Source != "" {
		s.BySource[ge.Source]++
	}
	s.LastError = ge
	s.LastErrorAt = ge.At
	s.TotalErrors++
}

// Aggregate composes a single error representing the exhaustion of all
// candidates, aggregating each candidate's error message.
func Aggregate(kind Kind, message string, errs []error) *Error {
	msg := message
	for i, e := range errs {
		if e == nil {
			continue
		}
		msg += fmt.Sprintf("\n  [%d] %v", i, e)
	}
	return &Error{Kind: kind, Message: msg, At: time.Now(), Retryable: false}
}
