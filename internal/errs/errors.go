// Package errs is the structured error taxonomy shared by the ring driver,
// session state machine, and pools. It lives under internal/ (rather than
// the root package) so that internal/session and internal/driver can return
// and classify these errors without importing the root package — which
// itself imports them to assemble the public Server.
package errs

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured socks5uring error with context and errno
// mapping.
type Error struct {
	Op        string // operation that failed (e.g. "accept", "connect", "decode_greeting")
	SessionID uint64 // session handle (0 if not session-scoped)
	Kind      ErrorKind
	Errno     syscall.Errno
	Msg       string
	Inner     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.SessionID != 0 {
		parts = append(parts, fmt.Sprintf("session=%d", e.SessionID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("socks5uring: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("socks5uring: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support keyed on Kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// ErrorKind represents the high-level taxonomy from the error-handling design.
type ErrorKind string

const (
	ErrKindInsufficientBuffers      ErrorKind = "insufficient buffers"
	ErrKindSyscallFailure           ErrorKind = "syscall failure"
	ErrKindRingInitFailure          ErrorKind = "ring init failure"
	ErrKindCompletionError          ErrorKind = "completion error"
	ErrKindProtocolViolation        ErrorKind = "protocol violation"
	ErrKindResolutionFailure        ErrorKind = "resolution failure"
	ErrKindDestinationConnectFailed ErrorKind = "destination connect failure"
	ErrKindPeerDisconnect           ErrorKind = "peer disconnect"
	ErrKindPoolInvariantViolation   ErrorKind = "pool invariant violation"
	ErrKindConfigError              ErrorKind = "config error"
)

// NewError creates a new structured error not tied to a specific errno.
func NewError(op string, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// NewErrorWithErrno creates a new structured error carrying a kernel errno.
func NewErrorWithErrno(op string, kind ErrorKind, errno syscall.Errno) *Error {
	return &Error{Op: op, Kind: kind, Errno: errno, Msg: errno.Error()}
}

// NewSessionError creates a new session-scoped structured error.
func NewSessionError(op string, sessionID uint64, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, SessionID: sessionID, Kind: kind, Msg: msg}
}

// WrapError wraps an existing error with socks5uring context, mapping a raw
// syscall.Errno to its taxonomy Kind when possible.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if se, ok := inner.(*Error); ok {
		return &Error{
			Op:        op,
			SessionID: se.SessionID,
			Kind:      se.Kind,
			Errno:     se.Errno,
			Msg:       se.Msg,
			Inner:     se.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:    op,
			Kind:  mapErrnoToKind(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{Op: op, Kind: ErrKindSyscallFailure, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToKind maps a syscall errno encountered while constructing a
// destination socket (or at startup) to a taxonomy Kind. Mapping to a
// SOCKS5 reply code is a separate step (see ReplyCodeForErrno in
// internal/session).
func mapErrnoToKind(errno syscall.Errno) ErrorKind {
	switch errno {
	case syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.ECONNREFUSED:
		return ErrKindDestinationConnectFailed
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrKindRingInitFailure
	case syscall.EMFILE, syscall.ENFILE:
		return ErrKindInsufficientBuffers
	default:
		return ErrKindSyscallFailure
	}
}

// IsKind checks whether err is a *Error with the given Kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsErrno checks whether err is a *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Errno == errno
	}
	return false
}
