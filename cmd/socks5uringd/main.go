package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/socks5uring/socks5uring"
	"github.com/socks5uring/socks5uring/internal/constants"
	"github.com/socks5uring/socks5uring/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port       uint16
		threads    int
		kernelPoll bool
		maxSess    int
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "socks5uringd",
		Short: "io_uring-driven SOCKS5 proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(port, threads, kernelPoll, maxSess, logLevel, logFormat)
		},
	}

	flags := cmd.Flags()
	flags.Uint16VarP(&port, "port", "p", 0, "listening port (required)")
	flags.IntVarP(&threads, "threads", "t", 0, "per-listener worker threads (0 = runtime.NumCPU())")
	flags.BoolVarP(&kernelPoll, "kernel-poll", "k", false, "request kernel SQ polling (requires privilege)")
	flags.IntVarP(&maxSess, "max-sessions", "b", constants.DefaultMaxSessions, "buffer/event pool capacity per thread")
	flags.StringVar(&logLevel, "log-level", "info", "one of debug|info|warn|error")
	flags.StringVar(&logFormat, "log-format", "", "one of console|json (default: console on a TTY, json otherwise)")
	cmd.MarkFlagRequired("port")

	return cmd
}

func run(port uint16, threads int, kernelPoll bool, maxSess int, logLevelStr, logFormatStr string) error {
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return err
	}
	format := parseLogFormat(logFormatStr)

	logger := logging.NewLogger(&logging.Config{Level: level, Format: format, Output: os.Stderr})
	logging.SetDefault(logger)

	if threads == 0 {
		threads = runtime.NumCPU()
	}
	privileged := kernelPoll || os.Geteuid() == 0
	if kernelPoll && os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "socks5uringd: --kernel-poll requires running as root")
		return fmt.Errorf("kernel polling requires privilege")
	}

	// SIGPIPE on a half-closed relay socket must not kill the process; the
	// write syscall already reports EPIPE through the completion's res.
	signal.Ignore(syscall.SIGPIPE)

	if err := socks5uring.RaiseResourceLimits(maxSess, threads, logger); err != nil {
		logger.Error("failed to inspect resource limits", "error", err.Error())
		return err
	}

	server, err := socks5uring.Listen(socks5uring.Options{
		Port:        port,
		Threads:     threads,
		MaxSessions: maxSess,
		KernelPoll:  kernelPoll,
		Privileged:  privileged,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to start server", "error", err.Error())
		return err
	}

	installStackDumpHandler(logger)

	logger.Info("socks5uringd ready", "port", server.Port(), "threads", server.Threads())

	// No graceful drain: SIGINT/SIGQUIT terminate immediately, matching the
	// original program's fatal-exit semantics rather than a drain timeout.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT)
	sig := <-sigCh
	logger.Error("received fatal signal, exiting immediately", "signal", sig.String())
	os.Exit(1)
	return nil
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch s {
	case "debug":
		return logging.LevelDebug, nil
	case "info", "":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown --log-level %q", s)
	}
}

func parseLogFormat(s string) logging.Format {
	switch s {
	case "json":
		return logging.FormatJSON
	case "console":
		return logging.FormatConsole
	default:
		if term, err := os.Stderr.Stat(); err == nil && (term.Mode()&os.ModeCharDevice) != 0 {
			return logging.FormatConsole
		}
		return logging.FormatJSON
	}
}

// installStackDumpHandler arms a SIGUSR1 handler that dumps every goroutine's
// stack to stderr and to a timestamped file, adapted from the teacher's
// memory-backend debugging aid (cmd/ublk-mem/main.go).
func installStackDumpHandler(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		for range ch {
			logger.Info("dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n=== END ===\n\n", buf[:n])

			filename := fmt.Sprintf("socks5uringd-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Goroutine stack dump at %s (pid %d)\n\n", time.Now().Format(time.RFC3339), os.Getpid())
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack dump written", "file", filename)
			}
		}
	}()
}
