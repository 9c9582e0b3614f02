package session

import (
	"encoding/binary"
	"syscall"

	"github.com/socks5uring/socks5uring/internal/constants"
)

// ReplyCodeForErrno maps a destination-socket construction errno to its
// SOCKS5 REP code, per the per-errno table in the state-machine design:
// ENETUNREACH -> network unreachable, EHOSTUNREACH -> host unreachable,
// ECONNREFUSED -> connection refused, everything else -> general failure.
func ReplyCodeForErrno(errno syscall.Errno) byte {
	switch errno {
	case syscall.ENETUNREACH:
		return constants.ReplyNetworkUnreachable
	case syscall.EHOSTUNREACH:
		return constants.ReplyHostUnreachable
	case syscall.ECONNREFUSED:
		return constants.ReplyConnectionRefused
	default:
		return constants.ReplyGeneralFailure
	}
}

// ipv4FailureReply builds the 10-byte IPv4-shaped failure reply: version,
// code, reserved, address type 1, zeroed address and port.
func ipv4FailureReply(code byte) []byte {
	return []byte{
		constants.ProtocolVersion, code, 0x00, constants.AddrTypeIPv4,
		0, 0, 0, 0,
		0, 0,
	}
}

// successReplyIPv4 builds the 10-byte success reply for an IPv4 destination.
func successReplyIPv4(addr [4]byte, port uint16) []byte {
	buf := make([]byte, 10)
	buf[0] = constants.ProtocolVersion
	buf[1] = constants.ReplySuccess
	buf[2] = 0x00
	buf[3] = constants.AddrTypeIPv4
	copy(buf[4:8], addr[:])
	binary.BigEndian.PutUint16(buf[8:10], port)
	return buf
}

// successReplyIPv6 builds the 22-byte success reply for an IPv6 destination.
func successReplyIPv6(addr [16]byte, port uint16) []byte {
	buf := make([]byte, 22)
	buf[0] = constants.ProtocolVersion
	buf[1] = constants.ReplySuccess
	buf[2] = 0x00
	buf[3] = constants.AddrTypeIPv6
	copy(buf[4:20], addr[:])
	binary.BigEndian.PutUint16(buf[20:22], port)
	return buf
}

// greetingReply is the method-selection reply: version 5, chosen method.
func greetingReply(method byte) []byte {
	return []byte{constants.ProtocolVersion, method}
}
