package resolver

import (
	"context"
	"net"
	"sync"
)

// Fake returns a deterministic, pre-programmed answer per hostname and
// counts calls for test assertions, grounded on the teacher's MockBackend
// call-counting pattern.
type Fake struct {
	mu       sync.Mutex
	answers  map[string][]net.IP
	errors   map[string]error
	calls    map[string]int
	allCalls int
}

// NewFake returns an empty Fake; use With/WithError to program responses.
func NewFake() *Fake {
	return &Fake{
		answers: make(map[string][]net.IP),
		errors:  make(map[string]error),
		calls:   make(map[string]int),
	}
}

// With programs host to resolve to ips.
func (f *Fake) With(host string, ips ...net.IP) *Fake {
	f.answers[host] = ips
	return f
}

// WithError programs host to fail resolution with err.
func (f *Fake) WithError(host string, err error) *Fake {
	f.errors[host] = err
	return f
}

func (f *Fake) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[host]++
	f.allCalls++
	if err, ok := f.errors[host]; ok {
		return nil, err
	}
	return f.answers[host], nil
}

// CallCount returns how many times Resolve was invoked for host.
func (f *Fake) CallCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

// TotalCalls returns the total number of Resolve invocations across all hosts.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allCalls
}

var _ Resolver = (*Fake)(nil)
