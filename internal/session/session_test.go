package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socks5uring/socks5uring/internal/constants"
	"github.com/socks5uring/socks5uring/internal/resolver"
)

// fakeSubmitter records every submission the session issues instead of
// performing real I/O, so tests can drive completions by hand and assert
// on exactly what the state machine asked the driver to do.
type fakeSubmitter struct {
	clientReads         int
	clientWrites        []writeCall
	destinationConnects int
	destinationReads    int
	destinationWrites   []writeCall
}

type writeCall struct {
	n, offset int
}

func (f *fakeSubmitter) SubmitClientRead(s *Session) { f.clientReads++ }
func (f *fakeSubmitter) SubmitClientWrite(s *Session, n, offset int) {
	f.clientWrites = append(f.clientWrites, writeCall{n, offset})
}
func (f *fakeSubmitter) SubmitDestinationConnect(s *Session) { f.destinationConnects++ }
func (f *fakeSubmitter) SubmitDestinationRead(s *Session)    { f.destinationReads++ }
func (f *fakeSubmitter) SubmitDestinationWrite(s *Session, n, offset int) {
	f.destinationWrites = append(f.destinationWrites, writeCall{n, offset})
}

func newTestSession(sub *fakeSubmitter, res resolver.Resolver) *Session {
	half0 := make([]byte, constants.HalfBufferSize)
	half1 := make([]byte, constants.HalfBufferSize)
	return New(1, 42, 0, half0, half1, sub, res)
}

func TestGreetingRejectsBadVersion(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())
	require.Equal(t, 1, sub.clientReads)

	copy(s.Half0, []byte{0x04, 0x01})
	s.OnClientRead(2)

	assert.True(t, s.Failed)
	assert.Empty(t, sub.clientWrites)
}

func TestGreetingRejectsZeroMethods(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())

	copy(s.Half0, []byte{0x05, 0x00})
	s.OnClientRead(2)

	assert.True(t, s.Failed)
}

func TestAuthNoAcceptableMethodSendsFF(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())

	copy(s.Half0, []byte{0x05, 0x01})
	s.OnClientRead(2)
	require.Equal(t, StateReadingAuthMethods, s.State)

	copy(s.Half0, []byte{0x02}) // some auth method other than no-auth
	s.OnClientRead(1)

	assert.True(t, s.Failed)
	require.Len(t, sub.clientWrites, 1)
	assert.Equal(t, []byte{0x05, 0xFF}, s.Half1[0:2])
}

func TestHandshakeToIPv4ConnectAndRelayStart(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())

	// Greeting: version 5, 1 auth method.
	copy(s.Half0, []byte{0x05, 0x01})
	s.OnClientRead(2)
	require.Equal(t, StateReadingAuthMethods, s.State)

	// Auth methods: no-auth only.
	copy(s.Half0, []byte{0x00})
	s.OnClientRead(1)
	require.Len(t, sub.clientWrites, 1)
	assert.Equal(t, []byte{0x05, 0x00}, s.Half1[0:2])

	// Drain the greeting reply write -> transition to connection request.
	s.OnClientWrite(2)
	require.Equal(t, StateReadingClientConnectionRequest, s.State)
	require.Equal(t, 3, sub.clientReads)

	// CONNECT request for 93.184.216.34:80.
	copy(s.Half0, []byte{0x05, 0x01, 0x00, constants.AddrTypeIPv4})
	s.OnClientRead(4)
	require.Equal(t, StateReadingAddress, s.State)

	copy(s.Half0, []byte{93, 184, 216, 34, 0x00, 0x50})
	s.OnClientRead(6)
	require.Equal(t, StateConnectingToDestination, s.State)
	require.Equal(t, 1, sub.destinationConnects)
	require.NotNil(t, s.ConnectAddr)

	s.OnDestinationConnect()
	require.Len(t, sub.clientWrites, 2)
	expected := []byte{0x05, 0x00, 0x00, 0x01, 93, 184, 216, 34, 0x00, 0x50}
	assert.Equal(t, expected, s.Half1[0:10])

	// Drain the success reply -> relay starts.
	s.OnClientWrite(10)
	assert.Equal(t, StateRelaying, s.State)
	assert.Equal(t, 1, sub.destinationReads)
}

func TestDomainResolutionPicksFirstAddressAndConnects(t *testing.T) {
	sub := &fakeSubmitter{}
	res := resolver.NewFake().With("example.com", net.ParseIP("93.184.216.34"))
	s := newTestSession(sub, res)

	copy(s.Half0, []byte{0x05, 0x01})
	s.OnClientRead(2)
	copy(s.Half0, []byte{0x00})
	s.OnClientRead(1)
	s.OnClientWrite(2)

	copy(s.Half0, []byte{0x05, 0x01, 0x00, constants.AddrTypeDomain})
	s.OnClientRead(4)
	require.Equal(t, StateReadingDomainNameLength, s.State)

	copy(s.Half0, []byte{11}) // len("example.com")
	s.OnClientRead(1)
	require.Equal(t, StateReadingAddress, s.State)

	domainAndPort := append([]byte("example.com"), 0x00, 0x50)
	copy(s.Half0, domainAndPort)
	s.OnClientRead(len(domainAndPort))

	require.Equal(t, StateConnectingToDestination, s.State)
	assert.Equal(t, 1, sub.destinationConnects)
	assert.Equal(t, 1, res.CallCount("example.com"))
}

func TestDomainResolutionFailureSendsHostUnreachable(t *testing.T) {
	sub := &fakeSubmitter{}
	res := resolver.NewFake() // no programmed answer -> empty result
	s := newTestSession(sub, res)

	copy(s.Half0, []byte{0x05, 0x01})
	s.OnClientRead(2)
	copy(s.Half0, []byte{0x00})
	s.OnClientRead(1)
	s.OnClientWrite(2)

	copy(s.Half0, []byte{0x05, 0x01, 0x00, constants.AddrTypeDomain})
	s.OnClientRead(4)
	copy(s.Half0, []byte{7})
	s.OnClientRead(1)

	domainAndPort := append([]byte("nowhere"), 0x00, 0x50)
	copy(s.Half0, domainAndPort)
	s.OnClientRead(len(domainAndPort))

	assert.True(t, s.Failed)
	assert.Equal(t, byte(constants.ReplyHostUnreachable), s.Half1[1])
}

func TestRelayForwardsBothDirectionsWithPartialWrites(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())
	s.State = StateRelaying
	sub.clientReads = 0 // discard the constructor's initial greeting read

	s.OnClientRead(100)
	require.Len(t, sub.destinationWrites, 1)
	assert.Equal(t, writeCall{100, 0}, sub.destinationWrites[0])

	// Partial destination write: only 40 of 100 bytes drained. The resubmit
	// must carry the total size (100), not the remaining count (60), so the
	// driver's buf[:size] slice still spans the whole write and buf[offset:]
	// lands on the untransmitted tail.
	s.OnDestinationWrite(40)
	require.Len(t, sub.destinationWrites, 2)
	assert.Equal(t, writeCall{100, 40}, sub.destinationWrites[1])

	s.OnDestinationWrite(60)
	assert.Equal(t, 1, sub.clientReads) // posts opposite-direction read

	s.OnDestinationRead(200)
	require.Len(t, sub.clientWrites, 1)
	assert.Equal(t, writeCall{200, 0}, sub.clientWrites[0])

	s.OnClientWrite(200)
	assert.Equal(t, 1, sub.destinationReads)
}

func TestRelayEmptyReadMarksFailed(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())
	s.State = StateRelaying

	s.OnClientRead(0)
	assert.True(t, s.Failed)

	s2 := newTestSession(sub, resolver.NewFake())
	s2.State = StateRelaying
	s2.OnDestinationRead(0)
	assert.True(t, s2.Failed)
}

func TestConnectionRequestRejectsNonConnectCommand(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())

	copy(s.Half0, []byte{0x05, 0x01})
	s.OnClientRead(2)
	copy(s.Half0, []byte{0x00})
	s.OnClientRead(1)
	s.OnClientWrite(2)

	copy(s.Half0, []byte{0x05, 0x02, 0x00, constants.AddrTypeIPv4}) // BIND, not CONNECT
	s.OnClientRead(4)

	assert.True(t, s.Failed)
	assert.Equal(t, byte(constants.ReplyCommandNotSupported), s.Half1[1])
}

func TestConnectionRequestRejectsUnsupportedAddressType(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())

	copy(s.Half0, []byte{0x05, 0x01})
	s.OnClientRead(2)
	copy(s.Half0, []byte{0x00})
	s.OnClientRead(1)
	s.OnClientWrite(2)

	// CONNECT with ATYP=0x02, which is none of IPv4/domain/IPv6.
	copy(s.Half0, []byte{0x05, 0x01, 0x00, 0x02})
	s.OnClientRead(4)

	assert.True(t, s.Failed)
	assert.Equal(t, byte(constants.ReplyConnectionRefused), s.Half1[1])
}

func TestReadAccumulatesAcrossShortReads(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestSession(sub, resolver.NewFake())

	s.Half0[0] = 0x05
	s.OnClientRead(1)
	assert.Equal(t, StateReadingClientGreeting, s.State)
	assert.Equal(t, 2, sub.clientReads) // initial + re-submit after short read

	s.Half0[0] = 0x01
	s.OnClientRead(1)
	assert.Equal(t, StateReadingAuthMethods, s.State)
}
