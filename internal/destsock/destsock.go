// Package destsock implements the destination-socket abstraction (C3): a
// stream socket opened but not yet connected, carrying whichever sockaddr
// shape (IPv4 or IPv6) the SOCKS5 request resolved to, ready to be handed to
// the ring driver's asynchronous connect submission.
package destsock

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Socket is a destination TCP endpoint: an opened-but-unconnected stream
// socket plus the raw sockaddr bytes the ring driver's connect submission
// needs.
type Socket interface {
	// FD returns the socket's file descriptor.
	FD() int
	// Sockaddr returns the kernel sockaddr to pass to the connect submission.
	Sockaddr() unix.Sockaddr
	// Close releases the socket.
	Close() error
}

// IPv4Socket is a destination socket for an IPv4 address.
type IPv4Socket struct {
	fd   int
	addr [4]byte
	port uint16
}

// NewIPv4Socket opens (but does not connect) an IPv4 stream socket.
func NewIPv4Socket(addr [4]byte, port uint16) (*IPv4Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return &IPv4Socket{fd: fd, addr: addr, port: port}, nil
}

func (s *IPv4Socket) FD() int { return s.fd }

func (s *IPv4Socket) Sockaddr() unix.Sockaddr {
	return &unix.SockaddrInet4{Port: int(s.port), Addr: s.addr}
}

func (s *IPv4Socket) Close() error { return unix.Close(s.fd) }

// Addr returns the 4-byte address in network order, for the SOCKS5 reply.
func (s *IPv4Socket) Addr() [4]byte { return s.addr }

// Port returns the port in host order.
func (s *IPv4Socket) Port() uint16 { return s.port }

// PortBytes returns the port as 2 big-endian bytes, as required by the
// SOCKS5 wire format.
func (s *IPv4Socket) PortBytes() [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], s.port)
	return b
}

// IPv6Socket is a destination socket for an IPv6 address.
type IPv6Socket struct {
	fd   int
	addr [16]byte
	port uint16
}

// NewIPv6Socket opens (but does not connect) an IPv6 stream socket.
func NewIPv6Socket(addr [16]byte, port uint16) (*IPv6Socket, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return &IPv6Socket{fd: fd, addr: addr, port: port}, nil
}

func (s *IPv6Socket) FD() int { return s.fd }

func (s *IPv6Socket) Sockaddr() unix.Sockaddr {
	return &unix.SockaddrInet6{Port: int(s.port), Addr: s.addr}
}

func (s *IPv6Socket) Close() error { return unix.Close(s.fd) }

func (s *IPv6Socket) Addr() [16]byte { return s.addr }

func (s *IPv6Socket) Port() uint16 { return s.port }

func (s *IPv6Socket) PortBytes() [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], s.port)
	return b
}

var (
	_ Socket = (*IPv4Socket)(nil)
	_ Socket = (*IPv6Socket)(nil)
)
