package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socks5uring/socks5uring/internal/constants"
)

func TestBufferPoolAcquireRelease(t *testing.T) {
	p := NewBufferPool(4)
	assert.Equal(t, 4, p.Cap())
	assert.Equal(t, 4, p.Len())

	idx, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	half0 := p.Half0(idx)
	half1 := p.Half1(idx)
	assert.Len(t, half0, constants.HalfBufferSize)
	assert.Len(t, half1, constants.HalfBufferSize)

	// Writing to one half must not alias the other.
	half0[0] = 0xAA
	half1[0] = 0xBB
	assert.Equal(t, byte(0xAA), half0[0])
	assert.Equal(t, byte(0xBB), half1[0])

	p.Release(idx)
	assert.Equal(t, 4, p.Len())
}

func TestBufferPoolExhaustion(t *testing.T) {
	p := NewBufferPool(2)

	idx0, err := p.Acquire()
	require.NoError(t, err)
	idx1, err := p.Acquire()
	require.NoError(t, err)

	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrInsufficientBuffers)

	p.Release(idx0)
	idx2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, idx0, idx2)

	p.Release(idx1)
	p.Release(idx2)
}

func TestBufferPoolRegisteredDescriptors(t *testing.T) {
	p := NewBufferPool(3)
	descs := p.RegisteredDescriptors()
	require.Len(t, descs, 6)
	for _, d := range descs {
		assert.Len(t, d.Base, constants.HalfBufferSize)
	}
}

func TestEventPoolAcquireRelease(t *testing.T) {
	p := NewEventPool(2)
	assert.Equal(t, 8, p.Cap()) // 4N with N=2

	idx, err := p.Acquire(7, EventClientRead)
	require.NoError(t, err)
	rec := p.Get(idx)
	assert.Equal(t, uint64(7), rec.SessionID)
	assert.Equal(t, EventClientRead, rec.Kind)

	p.Release(idx)
	assert.Equal(t, 8, p.Len())
}

func TestEventPoolExhaustion(t *testing.T) {
	p := NewEventPool(1) // capacity 4
	var acquired []int
	for i := 0; i < 4; i++ {
		idx, err := p.Acquire(uint64(i), EventClientRead)
		require.NoError(t, err)
		acquired = append(acquired, idx)
	}

	_, err := p.Acquire(99, EventClientRead)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	for _, idx := range acquired {
		p.Release(idx)
	}
	assert.Equal(t, 4, p.Len())
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "client_accept", EventClientAccept.String())
	assert.Equal(t, "destination_write", EventDestinationWrite.String())
}
