// Package resolver isolates synchronous hostname resolution (C10) behind an
// interface so the session state machine never imports net's blocking
// resolver directly, and tests can substitute deterministic lookups.
package resolver

import (
	"context"
	"net"
)

// Resolver resolves a hostname to zero or more IP addresses. Implementations
// are expected to be synchronous and blocking; the session state machine
// calls this inline from a completion handler (see SPEC_FULL.md §9's note on
// synchronous DNS in an async loop).
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]net.IP, error)
}

// SystemResolver wraps net.DefaultResolver for production use.
type SystemResolver struct{}

// NewSystemResolver returns a Resolver backed by the standard library.
func NewSystemResolver() *SystemResolver { return &SystemResolver{} }

func (r *SystemResolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

var _ Resolver = (*SystemResolver)(nil)
