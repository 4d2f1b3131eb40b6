// Package dsberrors provides the typed error taxonomy used across the bus
// (spec.md §7): every failure that crosses a component boundary carries one
// of a fixed set of Kinds, so callers can dispatch on classification
// instead of string-matching, in the style of
// _examples/C360Studio-semstreams/errors (simplified here to the 11 kinds
// spec.md actually defines, since retry policy here is kind-specific rather
// than class-generic).
package dsberrors

import (
	"errors"
	"fmt"
)

// Kind classifies a bus error.
type Kind uint8

const (
	KindTimeout Kind = iota
	KindProtocolViolation
	KindStaleStep
	KindUnknownVariable
	KindTypeMismatch
	KindInstantiationFailed
	KindSetupRejected
	KindStepFailed
	KindFatal
	KindAborted
	KindVersionMismatch
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindStaleStep:
		return "StaleStep"
	case KindUnknownVariable:
		return "UnknownVariable"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindInstantiationFailed:
		return "InstantiationFailed"
	case KindSetupRejected:
		return "SetupRejected"
	case KindStepFailed:
		return "StepFailed"
	case KindFatal:
		return "Fatal"
	case KindAborted:
		return "Aborted"
	case KindVersionMismatch:
		return "VersionMismatch"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Error is a classified bus error. Component and Action identify where the
// failure originated, for log correlation; Err, if non-nil, is the
// underlying cause and participates in errors.Is/errors.As chains.
type Error struct {
	Kind      Kind
	Component string
	Action    string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Action, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Action, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, SomeKindSentinel)-free comparison by kind:
// two *Error values match if their Kind matches.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs a classified error with no wrapped cause.
func New(kind Kind, component, action string) *Error {
	return &Error{Kind: kind, Component: component, Action: action}
}

// Wrap classifies err under kind, recording where it was observed.
func Wrap(err error, kind Kind, component, action string) *Error {
	return &Error{Kind: kind, Component: component, Action: action, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Sentinel returns a comparable sentinel *Error of the given kind, for use
// with errors.Is(err, dsberrors.Sentinel(KindTimeout)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}
