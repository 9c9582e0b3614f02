// Package uring is a minimal, pure-Go io_uring binding covering only the
// opcodes the proxy's ring driver needs: accept, read/write (plain and
// fixed-buffer), and connect. It talks to the kernel directly through
// golang.org/x/sys/unix's raw syscall numbers rather than cgo.
package uring

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// setupParams mirrors struct io_uring_params (include/uapi/linux/io_uring.h).
type setupParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ringOffsets
	cqOff        ringOffsets
}

// ringOffsets covers both io_sqring_offsets and io_cqring_offsets: the two
// structs share the same layout up to the field this driver reads.
type ringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flagsOrOvf  uint32
	dropOrCqes  uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type submissionQueue struct {
	head        *uint32
	tail        *uint32
	ringMask    uint32
	ringEntries uint32
	flags       *uint32
	dropped     *uint32
	array       []uint32
	sqes        []SQE
}

type completionQueue struct {
	head        *uint32
	tail        *uint32
	ringMask    uint32
	ringEntries uint32
	overflow    *uint32
	cqes        []CQE
}

// Ring is one io_uring instance: one per driver thread, never shared.
type Ring struct {
	fd       int
	params   setupParams
	ringMem  []byte
	sqeMem   []byte
	sq       submissionQueue
	cq       completionQueue
	sqToSqe  []uint32 // ring index -> sqe slot, mirrors sq.array before publish
	nextSqe  uint32   // next free slot in sq.sqes, wraps at ringEntries
}

// sqeRegionOffset is the fixed mmap offset the kernel expects for the SQE
// array when IORING_FEAT_SINGLE_MMAP folds SQ and CQ into one region but
// still maps SQEs separately.
const sqeRegionOffset = 0x10000000

// New sets up an io_uring instance with the given submission queue depth and
// setup flags (e.g. SetupSQPoll). entries is rounded up by the kernel to the
// next power of two.
func New(entries uint32, flags uint32) (*Ring, error) {
	params := setupParams{sqEntries: entries, flags: flags}

	fd, err := setup(entries, &params)
	if err != nil {
		return nil, fmt.Errorf("io_uring_setup: %w", err)
	}

	if params.features&FeatSingleMMap == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("kernel lacks IORING_FEAT_SINGLE_MMAP")
	}

	r := &Ring{fd: fd, params: params}

	pageSize := uint32(unix.Getpagesize())
	sqRingSize := params.sqOff.array + params.sqEntries*4
	cqRingSize := params.cqOff.dropOrCqes + params.cqEntries*uint32(unsafe.Sizeof(CQE{}))
	ringSize := sqRingSize
	if cqRingSize > ringSize {
		ringSize = cqRingSize
	}
	ringSize = (ringSize + pageSize - 1) &^ (pageSize - 1)

	ringMem, err := unix.Mmap(fd, 0, int(ringSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap ring region: %w", err)
	}
	r.ringMem = ringMem

	sqeSize := params.sqEntries * uint32(unsafe.Sizeof(SQE{}))
	sqeMem, err := unix.Mmap(fd, sqeRegionOffset, int(sqeSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(ringMem)
		unix.Close(fd)
		return nil, fmt.Errorf("mmap sqe array: %w", err)
	}
	r.sqeMem = sqeMem

	r.sq.head = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.head]))
	r.sq.tail = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.tail]))
	r.sq.ringMask = *(*uint32)(unsafe.Pointer(&ringMem[params.sqOff.ringMask]))
	r.sq.ringEntries = *(*uint32)(unsafe.Pointer(&ringMem[params.sqOff.ringEntries]))
	r.sq.flags = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.flagsOrOvf]))
	r.sq.dropped = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.dropOrCqes]))
	r.sq.array = unsafe.Slice((*uint32)(unsafe.Pointer(&ringMem[params.sqOff.array])), params.sqEntries)
	r.sq.sqes = unsafe.Slice((*SQE)(unsafe.Pointer(&sqeMem[0])), params.sqEntries)

	r.cq.head = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.head]))
	r.cq.tail = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.tail]))
	r.cq.ringMask = *(*uint32)(unsafe.Pointer(&ringMem[params.cqOff.ringMask]))
	r.cq.ringEntries = *(*uint32)(unsafe.Pointer(&ringMem[params.cqOff.ringEntries]))
	r.cq.overflow = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.flagsOrOvf]))
	r.cq.cqes = unsafe.Slice((*CQE)(unsafe.Pointer(&ringMem[params.cqOff.dropOrCqes])), params.cqEntries)

	runtime.SetFinalizer(r, func(r *Ring) { r.Close() })

	return r, nil
}

// FD returns the ring's file descriptor, needed for RegisterBuffers.
func (r *Ring) FD() int { return r.fd }

// Features returns the kernel-reported feature bitmask from setup.
func (r *Ring) Features() uint32 { return r.params.features }

// PeekSQE returns the next free submission slot for the caller to fill, or
// nil if the submission queue is full. The returned SQE must be followed by
// AdvanceSQ to become visible to the kernel.
func (r *Ring) PeekSQE() *SQE {
	tail := atomic.LoadUint32(r.sq.tail)
	head := atomic.LoadUint32(r.sq.head)
	if tail-head >= r.sq.ringEntries {
		return nil
	}
	idx := tail & r.sq.ringMask
	sqe := &r.sq.sqes[idx]
	*sqe = SQE{}
	r.sq.array[idx] = idx
	return sqe
}

// AdvanceSQ publishes n previously filled SQEs to the kernel.
func (r *Ring) AdvanceSQ(n uint32) {
	tail := atomic.LoadUint32(r.sq.tail)
	atomic.StoreUint32(r.sq.tail, tail+n)
}

// Submit calls io_uring_enter, publishing toSubmit SQEs and optionally
// blocking until minComplete CQEs are available.
func (r *Ring) Submit(toSubmit uint32, minComplete uint32, flags uint32) (int, error) {
	return enter(r.fd, toSubmit, minComplete, flags)
}

// PeekCQE returns the oldest unconsumed completion without advancing the
// queue, or nil if none are ready.
func (r *Ring) PeekCQE() *CQE {
	head := atomic.LoadUint32(r.cq.head)
	tail := atomic.LoadUint32(r.cq.tail)
	if head == tail {
		return nil
	}
	return &r.cq.cqes[head&r.cq.ringMask]
}

// AdvanceCQ releases the oldest n completions back to the kernel.
func (r *Ring) AdvanceCQ(n uint32) {
	head := atomic.LoadUint32(r.cq.head)
	atomic.StoreUint32(r.cq.head, head+n)
}

// WaitCQE blocks (via Submit with GetEvents) until at least one completion
// is ready, then returns it without advancing the queue.
func (r *Ring) WaitCQE() (*CQE, error) {
	if cqe := r.PeekCQE(); cqe != nil {
		return cqe, nil
	}
	if _, err := r.Submit(0, 1, EnterGetEvents); err != nil {
		return nil, err
	}
	cqe := r.PeekCQE()
	if cqe == nil {
		return nil, fmt.Errorf("io_uring_enter returned with no completion queued")
	}
	return cqe, nil
}

// RegisterBuffers registers a fixed set of iovecs for IORING_OP_{READ,WRITE}_FIXED.
func (r *Ring) RegisterBuffers(iovecs []Iovec) error {
	if len(iovecs) == 0 {
		return nil
	}
	return register(r.fd, RegisterBuffers, unsafe.Pointer(&iovecs[0]), uint32(len(iovecs)))
}

// Close tears down the mmap regions and the ring file descriptor. Safe to
// call more than once.
func (r *Ring) Close() error {
	runtime.SetFinalizer(r, nil)
	if r.sqeMem != nil {
		unix.Munmap(r.sqeMem)
		r.sqeMem = nil
	}
	if r.ringMem != nil {
		unix.Munmap(r.ringMem)
		r.ringMem = nil
	}
	if r.fd >= 0 {
		err := unix.Close(r.fd)
		r.fd = -1
		return err
	}
	return nil
}
