// Package socks5uring is the public API of an io_uring-driven SOCKS5 proxy
// server: session pools, the ring driver, and the structured error and
// metrics surfaces consumed by cmd/socks5uringd.
package socks5uring

import (
	"syscall"

	"github.com/socks5uring/socks5uring/internal/errs"
)

// Error, ErrorKind, and the taxonomy live in internal/errs so that
// internal/session and internal/driver can return and classify them
// without importing this package (which imports them in turn to assemble
// Server). These are aliases, not a copy: errors.Is/As and == comparisons
// against values from either package name are interchangeable.
type Error = errs.Error
type ErrorKind = errs.ErrorKind

const (
	ErrKindInsufficientBuffers      = errs.ErrKindInsufficientBuffers
	ErrKindSyscallFailure           = errs.ErrKindSyscallFailure
	ErrKindRingInitFailure          = errs.ErrKindRingInitFailure
	ErrKindCompletionError          = errs.ErrKindCompletionError
	ErrKindProtocolViolation        = errs.ErrKindProtocolViolation
	ErrKindResolutionFailure        = errs.ErrKindResolutionFailure
	ErrKindDestinationConnectFailed = errs.ErrKindDestinationConnectFailed
	ErrKindPeerDisconnect           = errs.ErrKindPeerDisconnect
	ErrKindPoolInvariantViolation   = errs.ErrKindPoolInvariantViolation
	ErrKindConfigError              = errs.ErrKindConfigError
)

// NewError creates a new structured error not tied to a specific errno.
func NewError(op string, kind ErrorKind, msg string) *Error { return errs.NewError(op, kind, msg) }

// NewErrorWithErrno creates a new structured error carrying a kernel errno.
func NewErrorWithErrno(op string, kind ErrorKind, errno syscall.Errno) *Error {
	return errs.NewErrorWithErrno(op, kind, errno)
}

// NewSessionError creates a new session-scoped structured error.
func NewSessionError(op string, sessionID uint64, kind ErrorKind, msg string) *Error {
	return errs.NewSessionError(op, sessionID, kind, msg)
}

// WrapError wraps an existing error with socks5uring context.
func WrapError(op string, inner error) *Error { return errs.WrapError(op, inner) }

// IsKind checks whether err is a *Error with the given Kind.
func IsKind(err error, kind ErrorKind) bool { return errs.IsKind(err, kind) }

// IsErrno checks whether err is a *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool { return errs.IsErrno(err, errno) }
