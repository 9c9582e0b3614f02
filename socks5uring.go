// Package socks5uring is the public API of an io_uring-driven SOCKS5 proxy
// server: listener setup, the per-thread ring drivers, and the structured
// error and metrics surfaces consumed by cmd/socks5uringd.
package socks5uring

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/socks5uring/socks5uring/internal/constants"
	"github.com/socks5uring/socks5uring/internal/driver"
	"github.com/socks5uring/socks5uring/internal/logging"
	"github.com/socks5uring/socks5uring/internal/resolver"
)

// Options configures a Server. Threads and MaxSessions fall back to their
// spec-mandated defaults (NumCPU and 4096 respectively) when left zero.
type Options struct {
	// Port is the TCP port to listen on.
	Port uint16

	// Threads is the number of per-thread ring drivers sharing the listening
	// socket. Zero means runtime.NumCPU().
	Threads int

	// MaxSessions is the buffer/event pool capacity per thread (N). Zero
	// means constants.DefaultMaxSessions.
	MaxSessions int

	// KernelPoll requests IORING_SETUP_SQPOLL. Requires Privileged.
	KernelPoll bool

	// Privileged enables SQPOLL (if KernelPoll is set) and fixed-buffer
	// registration. Set this only when running with the capabilities that
	// make those safe (e.g. CAP_SYS_NICE, a raised RLIMIT_MEMLOCK).
	Privileged bool

	// Context for cancellation. A nil Context uses context.Background().
	Context context.Context

	// Logger for structured records. A nil Logger uses logging.Default().
	Logger *logging.Logger

	// Observer for metrics collection. A nil Observer uses Metrics recorded
	// through NewMetricsObserver, reachable via Server.MetricsSnapshot.
	Observer Observer

	// Resolver resolves SOCKS5 domain-type addresses. A nil Resolver uses
	// the system resolver.
	Resolver resolver.Resolver
}

func (o Options) threads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	return runtime.NumCPU()
}

func (o Options) maxSessions() int {
	if o.MaxSessions > 0 {
		return o.MaxSessions
	}
	return constants.DefaultMaxSessions
}

// Server is a running SOCKS5 proxy: a shared listening socket and one ring
// driver per thread, each running its own completion loop (§5: one
// completion-driven loop per thread, no session state shared across
// threads).
type Server struct {
	listenFD int
	port     uint16
	drivers  []*driver.Driver
	metrics  *Metrics
	logger   *logging.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runErrs []error
	errMu   sync.Mutex
}

// Listen creates the shared listening socket, builds one ring driver per
// thread, and starts their completion loops. The returned Server is already
// serving; call Close or cancel opts.Context to stop it.
func Listen(opts Options) (*Server, error) {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("component", "server")

	if opts.KernelPoll && !opts.Privileged {
		return nil, NewError("listen", ErrKindConfigError, "kernel polling requested without Privileged")
	}

	listenFD, err := openListener(opts.Port)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	observer := opts.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	threads := opts.threads()
	capacity := opts.maxSessions()

	runCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		listenFD: listenFD,
		port:     opts.Port,
		drivers:  make([]*driver.Driver, 0, threads),
		metrics:  metrics,
		logger:   logger,
		cancel:   cancel,
	}

	for i := 0; i < threads; i++ {
		d, err := driver.New(driver.Config{
			ListenFD:   listenFD,
			Capacity:   capacity,
			KernelPoll: opts.KernelPoll,
			Privileged: opts.Privileged,
			Resolver:   opts.Resolver,
			Observer:   observer,
			Logger:     logger.With("thread", i),
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("starting ring driver %d: %w", i, err)
		}
		s.drivers = append(s.drivers, d)
	}

	for i, d := range s.drivers {
		s.wg.Add(1)
		go s.runThread(runCtx, i, d)
	}

	logger.Info("server listening", "port", opts.Port, "threads", threads, "max_sessions", capacity)
	return s, nil
}

func (s *Server) runThread(ctx context.Context, idx int, d *driver.Driver) {
	defer s.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("ring driver exited", "thread", idx, "error", err.Error())
		s.errMu.Lock()
		s.runErrs = append(s.runErrs, fmt.Errorf("thread %d: %w", idx, err))
		s.errMu.Unlock()
	}
}

// Wait blocks until every thread's completion loop has returned, then
// returns the first non-cancellation error any of them reported, if any.
func (s *Server) Wait() error {
	s.wg.Wait()
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if len(s.runErrs) > 0 {
		return s.runErrs[0]
	}
	return nil
}

// Close cancels every thread's completion loop, waits for them to return,
// tears down their live sessions, and closes the shared listening socket.
// There is no graceful drain: §10.4's signal-handling design matches the
// original program's immediate-exit semantics, not a drain-with-timeout.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	for _, d := range s.drivers {
		if d != nil {
			d.Close()
		}
	}
	if s.listenFD != 0 {
		return unix.Close(s.listenFD)
	}
	return nil
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() uint16 { return s.port }

// Threads returns the number of ring-driver threads serving this listener.
func (s *Server) Threads() int { return len(s.drivers) }

// Metrics returns the Metrics the default observer records into. When
// Options.Observer was supplied, nothing records into it and its counters
// stay at zero.
func (s *Server) Metrics() *Metrics { return s.metrics }

// MetricsSnapshot returns a point-in-time snapshot of server metrics.
func (s *Server) MetricsSnapshot() MetricsSnapshot {
	if s.metrics == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.Snapshot()
}

// openListener creates, binds, and listens on a nonblocking IPv6 dual-stack
// TCP socket on the given port, returning its fd for SO_REUSEPORT-free
// sharing across every thread's ring (the kernel load-balances accepts
// across rings polling the same listening fd).
func openListener(port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return 0, NewErrorWithErrno("socket", ErrKindSyscallFailure, err.(unix.Errno))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, NewErrorWithErrno("setsockopt", ErrKindSyscallFailure, err.(unix.Errno))
	}
	// V6ONLY=0 so a single socket accepts both IPv4-mapped and native IPv6
	// clients, matching the spec's ATYP=01/04 support without a second bind.
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)

	addr := &unix.SockaddrInet6{Port: int(port)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return 0, NewErrorWithErrno("bind", ErrKindSyscallFailure, err.(unix.Errno))
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return 0, NewErrorWithErrno("listen", ErrKindSyscallFailure, err.(unix.Errno))
	}
	return fd, nil
}

// RaiseResourceLimits raises RLIMIT_NOFILE to 2*maxSessions*threads and
// RLIMIT_MEMLOCK to constants.MemlockLimit, per §6's startup requirement.
// Call this before Listen when running with enough privilege to raise the
// hard limit; a failure to raise (but not to read) the current limit is
// non-fatal and only logged.
func RaiseResourceLimits(maxSessions, threads int, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	wantNoFile := uint64(2 * maxSessions * threads)

	var rlimNoFile unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimNoFile); err != nil {
		return NewErrorWithErrno("getrlimit_nofile", ErrKindSyscallFailure, err.(unix.Errno))
	}
	if rlimNoFile.Cur < wantNoFile {
		rlimNoFile.Cur = wantNoFile
		if rlimNoFile.Max < wantNoFile {
			rlimNoFile.Max = wantNoFile
		}
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimNoFile); err != nil {
			logger.Warn("could not raise RLIMIT_NOFILE", "wanted", wantNoFile, "error", err.Error())
		}
	}

	var rlimMemlock unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimMemlock); err != nil {
		return NewErrorWithErrno("getrlimit_memlock", ErrKindSyscallFailure, err.(unix.Errno))
	}
	if rlimMemlock.Cur < constants.MemlockLimit {
		rlimMemlock.Cur = constants.MemlockLimit
		if rlimMemlock.Max < constants.MemlockLimit {
			rlimMemlock.Max = constants.MemlockLimit
		}
		if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &rlimMemlock); err != nil {
			logger.Warn("could not raise RLIMIT_MEMLOCK", "wanted", constants.MemlockLimit, "error", err.Error())
		}
	}
	return nil
}
