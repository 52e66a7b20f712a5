package edmi

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels usable with errors.Is across the wrapper types below.
var (
	// ErrTimeout reports that no complete response arrived in time.
	ErrTimeout = errors.New("edmi: response timeout")
	// ErrBusy reports a second request while one is already in flight.
	ErrBusy = errors.New("edmi: session busy")
	// ErrIncompleteFrame is the codec's "need more bytes" indication. It is
	// not a failure: the caller should read more from the transport and
	// retry the extraction.
	ErrIncompleteFrame = errors.New("edmi: incomplete frame")
)

// TransportError wraps a fatal connect/read/write failure of the serial link.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("edmi: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FrameKind classifies frame decode failures.
type FrameKind int

const (
	FrameTruncated FrameKind = iota
	FrameBadChecksum
	FrameBadDelimiter
)

func (k FrameKind) String() string {
	switch k {
	case FrameTruncated:
		return "truncated"
	case FrameBadChecksum:
		return "bad checksum"
	case FrameBadDelimiter:
		return "bad delimiter"
	}
	return "unknown"
}

// FrameError reports a malformed frame. The session retry policy treats
// every kind as transient link noise worth one reissue.
type FrameError struct {
	Kind FrameKind
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("edmi: frame error: %s", e.Kind)
}

// AuthError reports an explicit credential rejection by the meter. Never
// retried automatically.
type AuthError struct {
	Code ErrorCode
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("edmi: authentication rejected: %s", e.Code)
}

// StateError reports an operation invoked in the wrong session state. The
// transport is never touched when this is returned.
type StateError struct {
	Op    string
	State SessionState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("edmi: %s not allowed in state %s", e.Op, e.State)
}

// UnknownRegisterError reports a register name that resolves to nothing.
// Suggestions carries the full sorted catalog for display by the caller.
type UnknownRegisterError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownRegisterError) Error() string {
	return fmt.Sprintf("edmi: unknown register %q (known: %s)", e.Name, strings.Join(e.Suggestions, ", "))
}

// UnknownSurveyError reports a survey name that resolves to nothing.
type UnknownSurveyError struct {
	Name      string
	Available []string
}

func (e *UnknownSurveyError) Error() string {
	return fmt.Sprintf("edmi: unknown survey %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// DecodeError reports response bytes that violate the protocol contract,
// e.g. a value shorter than its declared type width. Not retryable.
type DecodeError struct {
	What string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("edmi: decode: %s", e.What)
}

// MeterError wraps a non-zero error byte returned by the meter for a command
// or an individual register.
type MeterError struct {
	Code ErrorCode
}

func (e *MeterError) Error() string {
	return fmt.Sprintf("edmi: meter error 0x%02X: %s", byte(e.Code), e.Code)
}

// retryable reports whether the session may reissue the request once.
// Timeouts and all frame errors get a single retry; auth rejections, meter
// errors and decode errors do not.
func retryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var fe *FrameError
	return errors.As(err, &fe)
}
