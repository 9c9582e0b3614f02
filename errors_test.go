package socks5uring

import (
	"errors"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("decode_greeting", ErrKindProtocolViolation, "bad version byte")

	if err.Op != "decode_greeting" {
		t.Errorf("Expected Op=decode_greeting, got %s", err.Op)
	}
	if err.Kind != ErrKindProtocolViolation {
		t.Errorf("Expected Kind=ErrKindProtocolViolation, got %s", err.Kind)
	}

	expected := "socks5uring: bad version byte (op=decode_greeting)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("connect", ErrKindDestinationConnectFailed, syscall.ECONNREFUSED)

	if err.Errno != syscall.ECONNREFUSED {
		t.Errorf("Expected Errno=ECONNREFUSED, got %v", err.Errno)
	}
	if err.Kind != ErrKindDestinationConnectFailed {
		t.Errorf("Expected Kind=ErrKindDestinationConnectFailed, got %s", err.Kind)
	}
}

func TestSessionError(t *testing.T) {
	err := NewSessionError("on_client_read", 42, ErrKindPeerDisconnect, "zero-byte read")

	if err.SessionID != 42 {
		t.Errorf("Expected SessionID=42, got %d", err.SessionID)
	}

	expected := "socks5uring: zero-byte read (op=on_client_read)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	inner := syscall.ECONNREFUSED
	err := WrapError("dial_destination", inner)

	if err.Kind != ErrKindDestinationConnectFailed {
		t.Errorf("Expected Kind=ErrKindDestinationConnectFailed, got %s", err.Kind)
	}
	if err.Errno != syscall.ECONNREFUSED {
		t.Errorf("Expected Errno=ECONNREFUSED, got %v", err.Errno)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Error("Expected wrapped error to satisfy errors.Is for ECONNREFUSED")
	}
}

func TestWrapErrorPreservesStructuredError(t *testing.T) {
	inner := NewError("bind", ErrKindSyscallFailure, "address in use")
	wrapped := WrapError("listen", inner)

	if wrapped.Kind != ErrKindSyscallFailure {
		t.Errorf("Expected Kind to be preserved, got %s", wrapped.Kind)
	}
	if wrapped.Op != "listen" {
		t.Errorf("Expected Op=listen, got %s", wrapped.Op)
	}
}

func TestIsKind(t *testing.T) {
	err := NewError("accept", ErrKindInsufficientBuffers, "pool exhausted")

	if !IsKind(err, ErrKindInsufficientBuffers) {
		t.Error("IsKind should return true for matching kind")
	}
	if IsKind(err, ErrKindRingInitFailure) {
		t.Error("IsKind should return false for non-matching kind")
	}
	if IsKind(nil, ErrKindInsufficientBuffers) {
		t.Error("IsKind should return false for nil error")
	}
}

func TestIsErrno(t *testing.T) {
	err := NewErrorWithErrno("read", ErrKindCompletionError, syscall.EIO)

	if !IsErrno(err, syscall.EIO) {
		t.Error("IsErrno should return true for matching errno")
	}
	if IsErrno(err, syscall.EPERM) {
		t.Error("IsErrno should return false for non-matching errno")
	}
	if IsErrno(nil, syscall.EIO) {
		t.Error("IsErrno should return false for nil error")
	}
}

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		errno    syscall.Errno
		expected ErrorKind
	}{
		{syscall.ENETUNREACH, ErrKindDestinationConnectFailed},
		{syscall.EHOSTUNREACH, ErrKindDestinationConnectFailed},
		{syscall.ECONNREFUSED, ErrKindDestinationConnectFailed},
		{syscall.ENOSYS, ErrKindRingInitFailure},
		{syscall.EMFILE, ErrKindInsufficientBuffers},
		{syscall.EINVAL, ErrKindSyscallFailure},
	}

	for _, tc := range testCases {
		wrapped := WrapError("probe", tc.errno)
		if wrapped.Kind != tc.expected {
			t.Errorf("WrapError(%v).Kind = %s, want %s", tc.errno, wrapped.Kind, tc.expected)
		}
	}
}
