package socks5uring

import "github.com/socks5uring/socks5uring/internal/resolver"

// FakeResolver is a deterministic, pre-programmed Resolver for testing code
// that embeds a Server, grounded on the teacher's MockBackend pattern of
// shipping a call-counting test double alongside the library rather than
// making callers write their own.
type FakeResolver = resolver.Fake

// NewFakeResolver returns an empty FakeResolver; use With/WithError to
// program responses before passing it as Options.Resolver.
func NewFakeResolver() *FakeResolver { return resolver.NewFake() }

var _ resolver.Resolver = (*FakeResolver)(nil)
