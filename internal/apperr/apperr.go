// Package apperr defines the shared error envelope used across every
// subsystem of the daemon (config, bufferpool, connpool, httpserver, auth,
// soap, streamrouter, rtsp). Each subsystem still speaks in its own terms
// via constructor helpers, but every error they return carries one of the
// taxonomy Kinds below so the SOAP dispatcher and HTTP engine can map it to
// a wire-level status/fault without inspecting subsystem-specific types.
package apperr

import "fmt"

// Kind is the error taxonomy of spec.md §7.
type Kind int

const (
	KindInvalid Kind = iota
	KindNotFound
	KindNotSupported
	KindAuth
	KindIO
	KindResource
	KindParse
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindNotSupported:
		return "not_supported"
	case KindAuth:
		return "auth"
	case KindIO:
		return "io"
	case KindResource:
		return "resource"
	case KindParse:
		return "parse"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the shared envelope: a Kind, the operation that failed, a
// caller-safe message, and an optional wrapped cause. Message must never
// contain a stack trace, file path, or internal identifier — see spec.md
// §4.5/§7 on user-visible error bodies.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compares by Kind and Op so callers can test with errors.Is(err,
// apperr.New(apperr.KindNotFound, "op", "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	return true
}

// New constructs an *Error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error carrying an underlying cause. The cause is
// available via errors.Unwrap for logging, but Error() never renders it —
// callers must format err.Message themselves for anything client-visible.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return KindInternal
	}
	return e.Kind
}
