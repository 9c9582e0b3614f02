package uring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserDataRoundTrip(t *testing.T) {
	assert.Equal(t, 42, EventID(UserData(42)))
	assert.Equal(t, 0, EventID(UserData(0)))
}

func TestPrepareRead(t *testing.T) {
	buf := make([]byte, 16)
	var sqe SQE
	PrepareRead(&sqe, 7, buf, 3)
	assert.Equal(t, uint8(OpRead), sqe.Opcode)
	assert.Equal(t, int32(7), sqe.Fd)
	assert.Equal(t, uint32(16), sqe.Len)
	assert.Equal(t, UserData(3), sqe.UserData)
}

func TestPrepareWriteOffset(t *testing.T) {
	buf := make([]byte, 16)
	var sqe SQE
	PrepareWrite(&sqe, 7, buf, 10, 5)
	assert.Equal(t, uint8(OpWrite), sqe.Opcode)
	assert.Equal(t, uint32(6), sqe.Len)
}

func TestPrepareAccept(t *testing.T) {
	var sqe SQE
	PrepareAccept(&sqe, 4, 1)
	assert.Equal(t, uint8(OpAccept), sqe.Opcode)
	assert.Equal(t, int32(4), sqe.Fd)
}

func TestRawSockaddrInet4Encoding(t *testing.T) {
	sa := NewRawSockaddrInet4(8080, [4]byte{127, 0, 0, 1})
	assert.Equal(t, uint32(16), sa.Len())
	assert.NotZero(t, sa.Ptr())
}

func TestRawSockaddrInet6Encoding(t *testing.T) {
	sa := NewRawSockaddrInet6(443, [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	assert.Equal(t, uint32(28), sa.Len())
	assert.NotZero(t, sa.Ptr())
}
