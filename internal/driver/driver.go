package driver

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/socks5uring/socks5uring/internal/constants"
	"github.com/socks5uring/socks5uring/internal/errs"
	"github.com/socks5uring/socks5uring/internal/logging"
	"github.com/socks5uring/socks5uring/internal/metrics"
	"github.com/socks5uring/socks5uring/internal/pool"
	"github.com/socks5uring/socks5uring/internal/resolver"
	"github.com/socks5uring/socks5uring/internal/session"
	"github.com/socks5uring/socks5uring/internal/uring"
)

// acceptEventID is the sentinel event-pool index reserved for accept
// completions, which have no owning session. -1 packs to an eventID no
// genuine EventPool.Acquire call ever returns (indices run 0..cap-1), so
// the packed user_data is distinguishable from every real submission's
// cookie without needing a literal null.
const acceptEventID = -1

var acceptUserData = uring.UserData(acceptEventID)

// Config configures a Driver.
type Config struct {
	ListenFD   int
	Capacity   int // N: buffer/event pool capacity, max concurrent sessions
	KernelPoll bool
	Privileged bool // elevated enough to enable SQPOLL and register fixed buffers
	Resolver   resolver.Resolver
	Observer   metrics.Observer
	Logger     *logging.Logger
}

// Driver is one thread's completion loop: one ring, one buffer pool, one
// event pool, and the slab of live sessions that ring owns. A Driver is
// affine to the OS thread that calls Run and must never be touched from
// another goroutine (§5: no locks on per-thread state).
type Driver struct {
	ring         Ring
	listenFD     int
	bufPool      *pool.BufferPool
	evPool       *pool.EventPool
	sessions     []*session.Session // indexed by buffer index; nil when free
	fixedBuffers bool
	resolver     resolver.Resolver
	observer     metrics.Observer
	logger       *logging.Logger
	connectStart map[uint64]time.Time
}

// New builds a Driver backed by a real io_uring instance. KernelPoll
// without Privileged is a fatal configuration error, matching the
// "attempt to enable polling without privilege" rule in the ring-driver
// design.
func New(cfg Config) (*Driver, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = constants.DefaultMaxSessions
	}

	var flags uint32
	if cfg.KernelPoll {
		if !cfg.Privileged {
			return nil, errs.NewError("driver_new", errs.ErrKindConfigError, "kernel polling requested without elevated privilege")
		}
		flags |= uring.SetupSQPoll
	}

	ring, err := uring.New(uint32(cfg.Capacity), flags)
	if err != nil {
		return nil, errs.NewError("driver_new", errs.ErrKindRingInitFailure, err.Error())
	}

	d := newDriverWithRing(ring, cfg)

	if cfg.Privileged {
		if err := ring.RegisterBuffers(toIovecs(d.bufPool.RegisteredDescriptors())); err != nil {
			ring.Close()
			return nil, errs.NewError("driver_new", errs.ErrKindRingInitFailure, err.Error())
		}
	}

	return d, nil
}

// newDriverWithRing builds a Driver against a caller-supplied Ring
// (production uses a real *uring.Ring; tests use a fake), so the
// completion-dispatch logic is exercisable without a kernel.
func newDriverWithRing(ring Ring, cfg Config) *Driver {
	res := cfg.Resolver
	if res == nil {
		res = &resolver.SystemResolver{}
	}
	obs := cfg.Observer
	if obs == nil {
		obs = metrics.NoOpObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Driver{
		ring:         ring,
		listenFD:     cfg.ListenFD,
		bufPool:      pool.NewBufferPool(cfg.Capacity),
		evPool:       pool.NewEventPool(cfg.Capacity),
		sessions:     make([]*session.Session, cfg.Capacity),
		fixedBuffers: cfg.Privileged,
		resolver:     res,
		observer:     obs,
		logger:       logger.With("component", "driver"),
		connectStart: make(map[uint64]time.Time),
	}
}

func toIovecs(descs []pool.RegisteredDescriptor) []uring.Iovec {
	iovecs := make([]uring.Iovec, len(descs))
	for i, d := range descs {
		iovecs[i].Set(d.Base[:d.Len])
	}
	return iovecs
}

// Close tears down every live session and the ring itself.
func (d *Driver) Close() error {
	for _, s := range d.sessions {
		if s != nil {
			s.Close()
			unix.Close(s.ClientFD)
		}
	}
	return d.ring.Close()
}

// Run is the per-thread completion loop (§4.5). It blocks until ctx is
// canceled or a ring operation fails outright; per-session errors never
// escape here, they are absorbed into session teardown.
func (d *Driver) Run(ctx context.Context) error {
	d.submitAccept()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cqe, err := d.ring.WaitCQE()
		if err != nil {
			return fmt.Errorf("wait cqe: %w", err)
		}
		userData, res := cqe.UserData, cqe.Res
		d.ring.AdvanceCQ(1)

		if userData == acceptUserData {
			d.handleAcceptCompletion(res)
			continue
		}
		d.handleSessionCompletion(userData, res)
	}
}

// handleAcceptCompletion re-arms the accept submission and, on success,
// hands the new client fd to a session if the buffer pool has room.
func (d *Driver) handleAcceptCompletion(res int32) {
	d.submitAccept()

	if res < 0 {
		d.logger.Warn("accept failed", "errno", syscall.Errno(-res).Error())
		return
	}

	clientFD := int(res)
	idx, err := d.bufPool.Acquire()
	if err != nil {
		d.logger.Warn("buffer pool exhausted, rejecting connection")
		d.observer.ObserveReject()
		unix.Close(clientFD)
		return
	}

	sessionID := uint64(idx)
	s := session.New(sessionID, clientFD, idx, d.bufPool.Half0(idx), d.bufPool.Half1(idx), d, d.resolver)
	d.sessions[idx] = s
	d.observer.ObserveAccept()
	d.logger.Debug("session accepted", "session_id", sessionID, "client_fd", clientFD)

	if s.Failed && s.OutstandingSubmissions == 0 {
		d.teardown(s)
	}
}

// handleSessionCompletion is the non-accept branch of the completion loop:
// resolve the event record, decrement outstanding, dispatch if the session
// is still healthy, and tear down once outstanding drains to zero on a
// failed session.
func (d *Driver) handleSessionCompletion(userData uint64, res int32) {
	eventID := uring.EventID(userData)
	ev := d.evPool.Get(eventID)
	d.evPool.Release(eventID)

	if int(ev.SessionID) >= len(d.sessions) {
		return
	}
	s := d.sessions[ev.SessionID]
	if s == nil {
		// Stale completion for an already torn-down session.
		return
	}
	s.OutstandingSubmissions--

	switch {
	case res < 0:
		s.Failed = true
		s.LastErr = errs.NewErrorWithErrno(fmt.Sprintf("submit_%s", ev.Kind), errs.ErrKindCompletionError, syscall.Errno(-res))
	case !s.Failed:
		d.dispatch(s, ev.Kind, int(res))
	}

	if s.Failed && s.OutstandingSubmissions == 0 {
		d.teardown(s)
	}
}

func (d *Driver) dispatch(s *session.Session, kind pool.EventKind, n int) {
	switch kind {
	case pool.EventClientRead:
		if s.State == session.StateRelaying && n > 0 {
			d.observer.ObserveBytes(true, uint64(n))
		}
		s.OnClientRead(n)
	case pool.EventClientWrite:
		s.OnClientWrite(n)
	case pool.EventDestinationConnect:
		if start, ok := d.connectStart[s.ID]; ok {
			d.observer.ObserveConnectLatency(uint64(time.Since(start).Nanoseconds()))
			delete(d.connectStart, s.ID)
		}
		s.OnDestinationConnect()
	case pool.EventDestinationRead:
		if s.State == session.StateRelaying && n > 0 {
			d.observer.ObserveBytes(false, uint64(n))
		}
		s.OnDestinationRead(n)
	case pool.EventDestinationWrite:
		s.OnDestinationWrite(n)
	}
}

// teardown releases a failed, fully-drained session's resources. Called
// only once outstanding_submissions has reached zero (§4.4 Failure
// semantics).
func (d *Driver) teardown(s *session.Session) {
	kind := errs.ErrKindCompletionError
	if se, ok := s.LastErr.(*errs.Error); ok {
		kind = se.Kind
	}
	d.observer.ObserveSessionClosed(kind)

	s.Close()
	unix.Close(s.ClientFD)
	d.bufPool.Release(s.BufferIndex)
	d.sessions[s.BufferIndex] = nil
	delete(d.connectStart, s.ID)

	d.logger.Debug("session closed", "session_id", s.ID, "kind", string(kind))
}

func (d *Driver) bufIdx0(s *session.Session) uint16 { return uint16(2 * s.BufferIndex) }
func (d *Driver) bufIdx1(s *session.Session) uint16 { return uint16(2*s.BufferIndex + 1) }

func (d *Driver) submitAccept() {
	sqe := d.ring.PeekSQE()
	if sqe == nil {
		d.logger.Error("submission queue full while re-arming accept")
		return
	}
	uring.PrepareAccept(sqe, int32(d.listenFD), acceptEventID)
	d.ring.AdvanceSQ(1)
	if _, err := d.ring.Submit(1, 0, 0); err != nil {
		d.logger.Error("io_uring_enter failed for accept", "error", err.Error())
	}
}

// submitRead acquires an event record and submits a read, incrementing
// outstanding_submissions on success. On acquire/queue exhaustion the
// session is marked failed instead (PoolInvariantViolation / CompletionError).
func (d *Driver) submitRead(s *session.Session, kind pool.EventKind, fd int32, buf []byte, bufIdx uint16) {
	eventID, ok := d.acquireEvent(s, kind)
	if !ok {
		return
	}
	sqe := d.ring.PeekSQE()
	if sqe == nil {
		d.failSubmission(s, kind, eventID, "submission queue full")
		return
	}
	if d.fixedBuffers {
		uring.PrepareReadFixed(sqe, fd, buf, bufIdx, eventID)
	} else {
		uring.PrepareRead(sqe, fd, buf, eventID)
	}
	d.finishSubmit(s)
}

// submitWrite acquires an event record and submits a write of buf[offset:],
// mirroring submitRead's bookkeeping.
func (d *Driver) submitWrite(s *session.Session, kind pool.EventKind, fd int32, buf []byte, offset int, bufIdx uint16) {
	eventID, ok := d.acquireEvent(s, kind)
	if !ok {
		return
	}
	sqe := d.ring.PeekSQE()
	if sqe == nil {
		d.failSubmission(s, kind, eventID, "submission queue full")
		return
	}
	if d.fixedBuffers {
		uring.PrepareWriteFixed(sqe, fd, buf, offset, bufIdx, eventID)
	} else {
		uring.PrepareWrite(sqe, fd, buf, offset, eventID)
	}
	d.finishSubmit(s)
}

func (d *Driver) acquireEvent(s *session.Session, kind pool.EventKind) (int, bool) {
	eventID, err := d.evPool.Acquire(s.ID, kind)
	if err != nil {
		s.Failed = true
		s.LastErr = errs.NewSessionError(fmt.Sprintf("submit_%s", kind), s.ID, errs.ErrKindPoolInvariantViolation, "event pool exhausted")
		d.logger.Error("event pool exhausted", "kind", kind.String(), "session_id", s.ID)
		return 0, false
	}
	return eventID, true
}

func (d *Driver) failSubmission(s *session.Session, kind pool.EventKind, eventID int, msg string) {
	d.evPool.Release(eventID)
	s.Failed = true
	s.LastErr = errs.NewSessionError(fmt.Sprintf("submit_%s", kind), s.ID, errs.ErrKindCompletionError, msg)
	d.logger.Error(msg, "kind", kind.String(), "session_id", s.ID)
}

func (d *Driver) finishSubmit(s *session.Session) {
	d.ring.AdvanceSQ(1)
	s.OutstandingSubmissions++
	if _, err := d.ring.Submit(1, 0, 0); err != nil {
		d.logger.Error("io_uring_enter failed", "error", err.Error())
	}
}

// The following five methods implement session.Submitter.

func (d *Driver) SubmitClientRead(s *session.Session) {
	d.submitRead(s, pool.EventClientRead, int32(s.ClientFD), s.Half0, d.bufIdx0(s))
}

// SubmitClientWrite submits a write of half1[offset:size] to the client fd.
// size is the write's total length, not the bytes still outstanding: slicing
// to [:size] keeps offset indexing into the full buffer so a partial-write
// resubmit (offset > 0) covers [offset:size], the actual remainder, instead
// of re-slicing from an already-shrunk buffer.
func (d *Driver) SubmitClientWrite(s *session.Session, size, offset int) {
	d.submitWrite(s, pool.EventClientWrite, int32(s.ClientFD), s.Half1[:size], offset, d.bufIdx1(s))
}

func (d *Driver) SubmitDestinationRead(s *session.Session) {
	d.submitRead(s, pool.EventDestinationRead, int32(s.Destination.FD()), s.Half1, d.bufIdx1(s))
}

// SubmitDestinationWrite mirrors SubmitClientWrite for the client->destination
// direction; see its comment for why size must be the total write length.
func (d *Driver) SubmitDestinationWrite(s *session.Session, size, offset int) {
	d.submitWrite(s, pool.EventDestinationWrite, int32(s.Destination.FD()), s.Half0[:size], offset, d.bufIdx0(s))
}

func (d *Driver) SubmitDestinationConnect(s *session.Session) {
	eventID, ok := d.acquireEvent(s, pool.EventDestinationConnect)
	if !ok {
		return
	}
	sqe := d.ring.PeekSQE()
	if sqe == nil {
		d.failSubmission(s, pool.EventDestinationConnect, eventID, "submission queue full")
		return
	}
	uring.PrepareConnect(sqe, int32(s.Destination.FD()), s.ConnectAddr, s.ConnectAddr.Len(), eventID)
	d.connectStart[s.ID] = time.Now()
	d.finishSubmit(s)
}

var _ session.Submitter = (*Driver)(nil)
