// Package driver implements the completion-driven ring driver (C5): the
// six submission primitives from the state-machine design, the per-thread
// completion loop, and session lifecycle (accept, teardown, pool wiring).
// It is the only package that touches internal/uring directly; everything
// else reaches the kernel only through the session.Submitter surface this
// package implements.
package driver

import "github.com/socks5uring/socks5uring/internal/uring"

// Ring is the subset of *uring.Ring the driver depends on, narrowed to an
// interface so the completion-dispatch logic can be exercised against a
// fake in tests without a kernel. Production callers get a real ring from
// uring.New; *uring.Ring satisfies this interface unmodified.
type Ring interface {
	PeekSQE() *uring.SQE
	AdvanceSQ(n uint32)
	Submit(toSubmit, minComplete, flags uint32) (int, error)
	PeekCQE() *uring.CQE
	WaitCQE() (*uring.CQE, error)
	AdvanceCQ(n uint32)
	RegisterBuffers(iovecs []uring.Iovec) error
	FD() int
	Close() error
}

var _ Ring = (*uring.Ring)(nil)
