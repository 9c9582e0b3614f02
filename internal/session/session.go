// Package session implements the per-client SOCKS5 protocol state machine
// (C4): handshake decode, destination resolution and connect, and the
// full-duplex relay loop once a destination is connected. It never touches
// the ring directly — every I/O request goes through the Submitter
// interface the ring driver implements, keeping the protocol logic
// testable without a kernel.
package session

import (
	"context"
	"encoding/binary"
	"syscall"

	"github.com/socks5uring/socks5uring/internal/constants"
	"github.com/socks5uring/socks5uring/internal/destsock"
	"github.com/socks5uring/socks5uring/internal/errs"
	"github.com/socks5uring/socks5uring/internal/resolver"
	"github.com/socks5uring/socks5uring/internal/uring"
)

// Submitter is the ring driver's submission surface, as seen by a session.
// Each method corresponds to one of §4.5's submission primitives (minus
// submit_accept, which has no owning session yet).
type Submitter interface {
	SubmitClientRead(s *Session)
	// SubmitClientWrite submits a write of the total-size write spanning
	// [offset:size] of the destination-direction half. size is always the
	// full write's total length, not the bytes still outstanding, so a
	// partial-write resubmit covers the remainder rather than re-slicing
	// from an already-shrunk buffer.
	SubmitClientWrite(s *Session, size, offset int)
	SubmitDestinationConnect(s *Session)
	SubmitDestinationRead(s *Session)
	// SubmitDestinationWrite mirrors SubmitClientWrite for the
	// client->destination direction; size is the total write length.
	SubmitDestinationWrite(s *Session, size, offset int)
}

// Session is the central per-client entity: file descriptor, bound buffer
// halves, handshake scratch, and relay accounting. Every field the ring
// driver needs (buffer index, outstanding-submission count, failed flag) is
// exported; decode logic lives entirely in this package's methods.
type Session struct {
	ID          uint64
	ClientFD    int
	BufferIndex int
	Half0       []byte // client -> destination direction
	Half1       []byte // destination -> client direction

	State State

	readAccumulator []byte
	want            readWant

	authMethodCount int
	domainLen       int
	domainName      string
	addrType        byte
	ipv4Addr        [4]byte
	ipv6Addr        [16]byte
	port            uint16

	Destination destsock.Socket
	ConnectAddr *uring.RawSockaddr

	ClientWriteSize        int
	ClientWriteOffset      int
	DestinationWriteSize   int
	DestinationWriteOffset int

	afterWriteState      State
	afterWriteWant       readWant
	afterWriteStartRelay bool

	OutstandingSubmissions int
	Failed                 bool
	LastErr                error

	submitter Submitter
	resolver  resolver.Resolver
}

// New constructs a session in its initial ReadingClientGreeting state and
// issues the first read. half0/half1 must each be at least HalfBufferSize
// and must not be reused by any other live session.
func New(id uint64, clientFD, bufferIndex int, half0, half1 []byte, submitter Submitter, res resolver.Resolver) *Session {
	s := &Session{
		ID:          id,
		ClientFD:    clientFD,
		BufferIndex: bufferIndex,
		Half0:       half0,
		Half1:       half1,
		State:       StateReadingClientGreeting,
		submitter:   submitter,
		resolver:    res,
	}
	s.wantRead(exactlyN(2))
	return s
}

// Close releases the destination socket, if one was opened. The buffer
// index itself is released by the ring driver, which owns the pool.
func (s *Session) Close() {
	if s.Destination != nil {
		s.Destination.Close()
		s.Destination = nil
	}
}

func (s *Session) fail(op string, kind errs.ErrorKind, msg string) {
	s.LastErr = errs.NewSessionError(op, s.ID, kind, msg)
	s.Failed = true
}

// consume removes and returns the first n bytes of the read accumulator,
// shifting the remainder to the front.
func (s *Session) consume(n int) []byte {
	data := make([]byte, n)
	copy(data, s.readAccumulator[:n])
	remaining := copy(s.readAccumulator, s.readAccumulator[n:])
	s.readAccumulator = s.readAccumulator[:remaining]
	return data
}

// wantRead installs the predicate for the next decode step. If the
// accumulator already satisfies it, the current state is re-dispatched
// synchronously; otherwise a client read is submitted.
func (s *Session) wantRead(w readWant) {
	s.want = w
	if w.satisfied(len(s.readAccumulator)) {
		s.dispatchState()
		return
	}
	s.submitter.SubmitClientRead(s)
}

func (s *Session) dispatchState() {
	switch s.State {
	case StateReadingClientGreeting:
		s.decodeGreeting()
	case StateReadingAuthMethods:
		s.decodeAuthMethods()
	case StateReadingClientConnectionRequest:
		s.decodeConnectionRequest()
	case StateReadingDomainNameLength:
		s.decodeDomainNameLength()
	case StateReadingAddress:
		s.decodeAddress()
	}
}

// writeReply copies data into half1 and submits the client write that
// drains it. Used for every server->client byte sequence: method-selection
// replies, connection-request failure replies, and the post-connect
// success reply.
func (s *Session) writeReply(data []byte) {
	n := copy(s.Half1, data)
	s.ClientWriteSize = n
	s.ClientWriteOffset = 0
	s.submitter.SubmitClientWrite(s, n, 0)
}

// OnClientRead is the dispatch entry point for a completed client read.
func (s *Session) OnClientRead(n int) {
	if s.State == StateRelaying {
		if n == 0 {
			s.fail("on_client_read", errs.ErrKindPeerDisconnect, "client closed connection")
			return
		}
		s.DestinationWriteSize = n
		s.DestinationWriteOffset = 0
		s.submitter.SubmitDestinationWrite(s, n, 0)
		return
	}

	if n == 0 {
		s.fail("on_client_read", errs.ErrKindPeerDisconnect, "client closed connection during handshake")
		return
	}

	s.readAccumulator = append(s.readAccumulator, s.Half0[:n]...)
	if !s.want.satisfied(len(s.readAccumulator)) {
		s.submitter.SubmitClientRead(s)
		return
	}
	s.dispatchState()
}

// OnClientWrite is the dispatch entry point for a completed client write,
// whether it drains a handshake reply or relays destination bytes.
func (s *Session) OnClientWrite(n int) {
	s.ClientWriteOffset += n
	if s.ClientWriteOffset < s.ClientWriteSize {
		s.submitter.SubmitClientWrite(s, s.ClientWriteSize, s.ClientWriteOffset)
		return
	}

	if s.State == StateRelaying {
		s.submitter.SubmitDestinationRead(s)
		return
	}

	if s.Failed {
		return
	}
	s.applyAfterWriteTransition()
}

func (s *Session) applyAfterWriteTransition() {
	if s.afterWriteStartRelay {
		s.afterWriteStartRelay = false
		s.State = StateRelaying
		s.submitter.SubmitDestinationRead(s)
		s.wantRead(atLeastOne())
		return
	}
	s.State = s.afterWriteState
	s.wantRead(s.afterWriteWant)
}

// OnDestinationConnect is the dispatch entry point for a completed
// asynchronous connect. Reachable only from ConnectingToDestination.
func (s *Session) OnDestinationConnect() {
	var reply []byte
	if s.addrType == constants.AddrTypeIPv6 {
		reply = successReplyIPv6(s.ipv6Addr, s.port)
	} else {
		reply = successReplyIPv4(s.ipv4Addr, s.port)
	}
	s.afterWriteStartRelay = true
	s.writeReply(reply)
}

// OnDestinationRead is the dispatch entry point for a completed read from
// the destination, only reachable during Relaying.
func (s *Session) OnDestinationRead(n int) {
	if n == 0 {
		s.fail("on_destination_read", errs.ErrKindPeerDisconnect, "destination closed connection")
		return
	}
	s.ClientWriteSize = n
	s.ClientWriteOffset = 0
	s.submitter.SubmitClientWrite(s, n, 0)
}

// OnDestinationWrite is the dispatch entry point for a completed write to
// the destination, only reachable during Relaying.
func (s *Session) OnDestinationWrite(n int) {
	s.DestinationWriteOffset += n
	if s.DestinationWriteOffset < s.DestinationWriteSize {
		s.submitter.SubmitDestinationWrite(s, s.DestinationWriteSize, s.DestinationWriteOffset)
		return
	}
	s.submitter.SubmitClientRead(s)
}

func (s *Session) decodeGreeting() {
	if s.readAccumulator[0] != constants.ProtocolVersion || s.readAccumulator[1] == 0 {
		s.fail("decode_greeting", errs.ErrKindProtocolViolation, "bad version byte or zero methods")
		return
	}
	m := int(s.readAccumulator[1])
	s.consume(2)
	s.authMethodCount = m
	s.State = StateReadingAuthMethods
	s.wantRead(exactlyN(m))
}

func (s *Session) decodeAuthMethods() {
	methods := s.consume(s.authMethodCount)

	hasNoAuth := false
	for _, m := range methods {
		if m == constants.AuthNoneRequired {
			hasNoAuth = true
			break
		}
	}

	if !hasNoAuth {
		s.fail("decode_auth_methods", errs.ErrKindProtocolViolation, "no acceptable auth method offered")
		s.writeReply(greetingReply(constants.AuthNoAcceptable))
		return
	}

	s.afterWriteState = StateReadingClientConnectionRequest
	s.afterWriteWant = exactlyN(4)
	s.writeReply(greetingReply(constants.AuthNoneRequired))
}

func (s *Session) decodeConnectionRequest() {
	b := s.consume(4)
	if b[0] != constants.ProtocolVersion || b[1] != constants.CmdConnect || b[2] != 0x00 {
		s.fail("decode_connection_request", errs.ErrKindProtocolViolation, "unsupported command or malformed request")
		s.writeReply(ipv4FailureReply(constants.ReplyCommandNotSupported))
		return
	}

	s.addrType = b[3]
	switch s.addrType {
	case constants.AddrTypeIPv4:
		s.State = StateReadingAddress
		s.wantRead(exactlyN(constants.IPv4AddrLen + constants.PortLen))
	case constants.AddrTypeDomain:
		s.State = StateReadingDomainNameLength
		s.wantRead(exactlyN(1))
	case constants.AddrTypeIPv6:
		s.State = StateReadingAddress
		s.wantRead(exactlyN(constants.IPv6AddrLen + constants.PortLen))
	default:
		s.fail("decode_connection_request", errs.ErrKindProtocolViolation, "unsupported address type")
		s.writeReply(ipv4FailureReply(constants.ReplyConnectionRefused))
	}
}

func (s *Session) decodeDomainNameLength() {
	b := s.consume(1)
	s.domainLen = int(b[0])
	s.State = StateReadingAddress
	s.wantRead(exactlyN(s.domainLen + constants.PortLen))
}

func (s *Session) decodeAddress() {
	switch s.addrType {
	case constants.AddrTypeIPv4:
		b := s.consume(constants.IPv4AddrLen + constants.PortLen)
		copy(s.ipv4Addr[:], b[0:constants.IPv4AddrLen])
		s.port = binary.BigEndian.Uint16(b[constants.IPv4AddrLen:])
		s.connectIPv4()
	case constants.AddrTypeIPv6:
		b := s.consume(constants.IPv6AddrLen + constants.PortLen)
		copy(s.ipv6Addr[:], b[0:constants.IPv6AddrLen])
		s.port = binary.BigEndian.Uint16(b[constants.IPv6AddrLen:])
		s.connectIPv6()
	case constants.AddrTypeDomain:
		b := s.consume(s.domainLen + constants.PortLen)
		s.domainName = string(b[0:s.domainLen])
		s.port = binary.BigEndian.Uint16(b[s.domainLen:])
		s.resolveDomain()
	}
}

func (s *Session) resolveDomain() {
	ips, err := s.resolver.Resolve(context.Background(), s.domainName)
	if err != nil || len(ips) == 0 {
		s.fail("resolve_domain", errs.ErrKindResolutionFailure, "host resolution failed")
		s.writeReply(ipv4FailureReply(constants.ReplyHostUnreachable))
		return
	}

	ip := ips[0]
	if v4 := ip.To4(); v4 != nil {
		s.addrType = constants.AddrTypeIPv4
		copy(s.ipv4Addr[:], v4)
		s.connectIPv4()
		return
	}
	s.addrType = constants.AddrTypeIPv6
	copy(s.ipv6Addr[:], ip.To16())
	s.connectIPv6()
}

func (s *Session) connectIPv4() {
	sock, err := destsock.NewIPv4Socket(s.ipv4Addr, s.port)
	if err != nil {
		s.failConnect(err)
		return
	}
	s.Destination = sock
	s.ConnectAddr = uring.NewRawSockaddrInet4(s.port, s.ipv4Addr)
	s.State = StateConnectingToDestination
	s.submitter.SubmitDestinationConnect(s)
}

func (s *Session) connectIPv6() {
	sock, err := destsock.NewIPv6Socket(s.ipv6Addr, s.port)
	if err != nil {
		s.failConnect(err)
		return
	}
	s.Destination = sock
	s.ConnectAddr = uring.NewRawSockaddrInet6(s.port, s.ipv6Addr)
	s.State = StateConnectingToDestination
	s.submitter.SubmitDestinationConnect(s)
}

func (s *Session) failConnect(err error) {
	code := byte(constants.ReplyGeneralFailure)
	if errno, ok := err.(syscall.Errno); ok {
		code = ReplyCodeForErrno(errno)
	}
	s.LastErr = errs.WrapError("construct_destination_socket", err)
	s.Failed = true
	s.writeReply(ipv4FailureReply(code))
}
