package destsock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestIPv4SocketOpensUnconnected(t *testing.T) {
	s, err := NewIPv4Socket([4]byte{127, 0, 0, 1}, 8080)
	require.NoError(t, err)
	defer s.Close()

	assert.Greater(t, s.FD(), 0)
	sa, ok := s.Sockaddr().(*unix.SockaddrInet4)
	require.True(t, ok)
	assert.Equal(t, 8080, sa.Port)
	assert.Equal(t, [4]byte{127, 0, 0, 1}, sa.Addr)
	assert.Equal(t, [2]byte{0x1F, 0x90}, s.PortBytes())
}

func TestIPv6SocketOpensUnconnected(t *testing.T) {
	addr := [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	s, err := NewIPv6Socket(addr, 443)
	require.NoError(t, err)
	defer s.Close()

	assert.Greater(t, s.FD(), 0)
	sa, ok := s.Sockaddr().(*unix.SockaddrInet6)
	require.True(t, ok)
	assert.Equal(t, 443, sa.Port)
	assert.Equal(t, addr, sa.Addr)
}
