//go:build !linux

package uring

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Non-Linux builds have no io_uring; every entry point fails with ENOSYS so
// callers get a normal error instead of a link failure.

func setup(entries uint32, params *setupParams) (int, error) {
	return 0, unix.ENOSYS
}

func enter(fd int, toSubmit, minComplete, flags uint32) (int, error) {
	return 0, unix.ENOSYS
}

func register(fd int, opcode uint32, arg unsafe.Pointer, nrArgs uint32) error {
	return unix.ENOSYS
}
