// Package pool implements the two fixed-size resource pools the ring driver
// depends on: a buffer pool (C1) handing out session byte-buffer halves, and
// an event pool (C2) handing out completion-tracking records. Both are
// single-threaded: a pool instance belongs to exactly one ring driver thread
// and is never touched from another goroutine.
package pool

import (
	"github.com/eapache/queue"

	"github.com/socks5uring/socks5uring/internal/constants"
)

// BufferPool owns a contiguous region split into N fixed-size session
// buffers, each buffer logically split into two halves.
type BufferPool struct {
	region []byte
	free   *queue.Queue
	cap    int
}

// ErrInsufficientBuffers is returned by Acquire when the free queue is empty.
var ErrInsufficientBuffers = errInsufficientBuffers{}

type errInsufficientBuffers struct{}

func (errInsufficientBuffers) Error() string { return "buffer pool exhausted" }

// NewBufferPool constructs a pool with capacity N sessions, each session
// owning two halves of constants.HalfBufferSize bytes.
func NewBufferPool(n int) *BufferPool {
	p := &BufferPool{
		region: make([]byte, n*constants.BufferSize),
		free:   queue.New(),
		cap:    n,
	}
	for i := 0; i < n; i++ {
		p.free.Add(i)
	}
	return p
}

// Cap returns the pool's total capacity.
func (p *BufferPool) Cap() int { return p.cap }

// Len returns the number of currently free buffer indices.
func (p *BufferPool) Len() int { return p.free.Length() }

// Acquire pops a free buffer index, or returns ErrInsufficientBuffers.
func (p *BufferPool) Acquire() (int, error) {
	if p.free.Length() == 0 {
		return 0, ErrInsufficientBuffers
	}
	idx := p.free.Peek().(int)
	p.free.Remove()
	return idx, nil
}

// Release returns a buffer index to the free queue. Callers must release
// exactly once per acquire; double-release is not detected.
func (p *BufferPool) Release(index int) {
	p.free.Add(index)
}

func (p *BufferPool) offset(index int) int { return index * constants.BufferSize }

// Half0 returns the client->destination byte span for the given buffer index.
func (p *BufferPool) Half0(index int) []byte {
	base := p.offset(index)
	return p.region[base : base+constants.HalfBufferSize]
}

// Half1 returns the destination->client byte span for the given buffer index.
func (p *BufferPool) Half1(index int) []byte {
	base := p.offset(index) + constants.HalfBufferSize
	return p.region[base : base+constants.HalfBufferSize]
}

// RegisteredDescriptor describes one half-buffer span for registration with
// the ring as a fixed (registered) buffer.
type RegisteredDescriptor struct {
	Base []byte
	Len  int
}

// RegisteredDescriptors returns the ordered sequence of 2N descriptors
// (half0 of buffer 0, half1 of buffer 0, half0 of buffer 1, ...) to register
// with the ring at startup when running with elevated privileges.
func (p *BufferPool) RegisteredDescriptors() []RegisteredDescriptor {
	descs := make([]RegisteredDescriptor, 0, 2*p.cap)
	for i := 0; i < p.cap; i++ {
		descs = append(descs, RegisteredDescriptor{Base: p.Half0(i), Len: constants.HalfBufferSize})
		descs = append(descs, RegisteredDescriptor{Base: p.Half1(i), Len: constants.HalfBufferSize})
	}
	return descs
}

// EventKind tags what a completion cookie refers to.
type EventKind int

const (
	EventClientAccept EventKind = iota
	EventClientRead
	EventClientWrite
	EventDestinationConnect
	EventDestinationRead
	EventDestinationWrite
)

func (k EventKind) String() string {
	switch k {
	case EventClientAccept:
		return "client_accept"
	case EventClientRead:
		return "client_read"
	case EventClientWrite:
		return "client_write"
	case EventDestinationConnect:
		return "destination_connect"
	case EventDestinationRead:
		return "destination_read"
	case EventDestinationWrite:
		return "destination_write"
	default:
		return "unknown"
	}
}

// Event is one pre-allocated completion record. SessionID is a slab index
// (see internal/driver), not a pointer. The driver frees a slab slot only
// once its session has no outstanding submissions, and drops a completion
// whose slot is already empty; records carry no generation counter.
type Event struct {
	ID        int
	SessionID uint64
	Kind      EventKind
}

// EventPool owns 4N pre-allocated event records and hands them out by index.
type EventPool struct {
	records []Event
	free    *queue.Queue
}

// ErrPoolExhausted is returned when EventPool.Acquire is called beyond its
// 4N capacity. Spec: "exceeding that count is a bug to be asserted in debug."
var ErrPoolExhausted = errPoolExhausted{}

type errPoolExhausted struct{}

func (errPoolExhausted) Error() string { return "event pool exhausted" }

// NewEventPool constructs an event pool of capacity constants.EventPoolMultiplier*n.
func NewEventPool(n int) *EventPool {
	cap := constants.EventPoolMultiplier * n
	p := &EventPool{
		records: make([]Event, cap),
		free:    queue.New(),
	}
	for i := 0; i < cap; i++ {
		p.records[i].ID = i
		p.free.Add(i)
	}
	return p
}

// Cap returns the pool's total capacity.
func (p *EventPool) Cap() int { return len(p.records) }

// Len returns the number of currently free event records.
func (p *EventPool) Len() int { return p.free.Length() }

// Acquire pops a free record, sets its session/kind, and returns its index.
func (p *EventPool) Acquire(sessionID uint64, kind EventKind) (int, error) {
	if p.free.Length() == 0 {
		return 0, ErrPoolExhausted
	}
	idx := p.free.Peek().(int)
	p.free.Remove()
	p.records[idx].SessionID = sessionID
	p.records[idx].Kind = kind
	return idx, nil
}

// Get returns the event record at idx by value.
func (p *EventPool) Get(idx int) Event { return p.records[idx] }

// Release returns an event record's index to the free queue.
func (p *EventPool) Release(idx int) {
	p.free.Add(idx)
}
