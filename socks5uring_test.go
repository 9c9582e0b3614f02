package socks5uring

import (
	"context"
	"net"
	"runtime"
	"testing"
)

func TestOptionsDefaults(t *testing.T) {
	var opts Options

	if got, want := opts.threads(), runtime.NumCPU(); got != want {
		t.Errorf("threads() = %d, want %d (NumCPU)", got, want)
	}
	if got, want := opts.maxSessions(), DefaultMaxSessions; got != want {
		t.Errorf("maxSessions() = %d, want %d", got, want)
	}
}

func TestOptionsExplicitValuesOverrideDefaults(t *testing.T) {
	opts := Options{Threads: 3, MaxSessions: 128}

	if got := opts.threads(); got != 3 {
		t.Errorf("threads() = %d, want 3", got)
	}
	if got := opts.maxSessions(); got != 128 {
		t.Errorf("maxSessions() = %d, want 128", got)
	}
}

func TestListenRejectsKernelPollWithoutPrivilege(t *testing.T) {
	_, err := Listen(Options{Port: 0, KernelPoll: true, Privileged: false})
	if err == nil {
		t.Fatal("expected an error requesting kernel polling without Privileged")
	}
	if !IsKind(err, ErrKindConfigError) {
		t.Errorf("expected ErrKindConfigError, got %v", err)
	}
}

func TestFakeResolverProgrammedAnswer(t *testing.T) {
	r := NewFakeResolver().With("example.com", net.ParseIP("93.184.216.34"))

	ips, err := r.Resolve(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ips) != 1 || !ips[0].Equal(net.ParseIP("93.184.216.34")) {
		t.Errorf("Resolve() = %v, want [93.184.216.34]", ips)
	}
	if got := r.CallCount("example.com"); got != 1 {
		t.Errorf("CallCount() = %d, want 1", got)
	}
}
