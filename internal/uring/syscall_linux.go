//go:build linux

package uring

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setup issues io_uring_setup(2). There is no wrapper for this in
// golang.org/x/sys/unix beyond the raw syscall number, so the three calls
// this package needs (setup/enter/register) go through unix.Syscall directly.
func setup(entries uint32, params *setupParams) (int, error) {
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(params)), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(fd), nil
}

// enter issues io_uring_enter(2).
func enter(fd int, toSubmit, minComplete, flags uint32) (int, error) {
	n, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER,
		uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// register issues io_uring_register(2).
func register(fd int, opcode uint32, arg unsafe.Pointer, nrArgs uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_REGISTER,
		uintptr(fd), uintptr(opcode), uintptr(arg), uintptr(nrArgs), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
