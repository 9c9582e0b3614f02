package uring

import "unsafe"

// SQE mirrors the kernel's 64-byte io_uring_sqe layout (include/uapi/linux/io_uring.h).
// Only the fields this driver's opcode set needs are named individually; the
// two reserved/addr3 fields round the struct out to 64 bytes.
type SQE struct {
	Opcode      uint8
	Flags       uint8
	IoPrio      uint16
	Fd          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpcodeFlags uint32
	UserData    uint64
	BufIndex    uint16
	Personality uint16
	SpliceFdIn  int32
	addr3       uint64
	_           uint64
}

// CQE mirrors the kernel's 16-byte io_uring_cqe layout.
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// Iovec mirrors struct iovec. RegisterBuffers takes one per registered
// buffer half, and the Prepare* helpers use it to take a buffer's base
// address.
type Iovec struct {
	Base uintptr
	Len  uint64
}

func (iv *Iovec) Set(b []byte) {
	if len(b) == 0 {
		iv.Base = 0
		iv.Len = 0
		return
	}
	iv.Base = uintptr(unsafe.Pointer(&b[0]))
	iv.Len = uint64(len(b))
}

// RawSockaddr holds the raw bytes of a sockaddr_in/sockaddr_in6, pinned for
// the lifetime of an in-flight IORING_OP_CONNECT submission. The driver
// builds one from a destsock.Socket's unix.Sockaddr before preparing the
// connect SQE and keeps it alive on the session until the completion lands.
type RawSockaddr struct {
	buf []byte
}

// NewRawSockaddrInet4 encodes a sockaddr_in (AF_INET, port, addr) in network
// byte order.
func NewRawSockaddrInet4(port uint16, addr [4]byte) *RawSockaddr {
	buf := make([]byte, 16)
	buf[0] = 2 // AF_INET
	buf[1] = 0
	buf[2] = byte(port >> 8)
	buf[3] = byte(port)
	copy(buf[4:8], addr[:])
	return &RawSockaddr{buf: buf}
}

// NewRawSockaddrInet6 encodes a sockaddr_in6 (AF_INET6, port, addr) in
// network byte order.
func NewRawSockaddrInet6(port uint16, addr [16]byte) *RawSockaddr {
	buf := make([]byte, 28)
	buf[0] = 10 // AF_INET6
	buf[1] = 0
	buf[2] = byte(port >> 8)
	buf[3] = byte(port)
	copy(buf[8:24], addr[:])
	return &RawSockaddr{buf: buf}
}

// Ptr returns the address of the encoded sockaddr bytes.
func (r *RawSockaddr) Ptr() uintptr { return uintptr(unsafe.Pointer(&r.buf[0])) }

// Len returns the encoded sockaddr length (16 for IPv4, 28 for IPv6).
func (r *RawSockaddr) Len() uint32 { return uint32(len(r.buf)) }
