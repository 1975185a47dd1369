package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// DefaultGrace is how long past a monitor's timeout the guard waits before giving up on a probe.
const DefaultGrace = 500 * time.Millisecond

// Registry selects a Prober by monitor type and enforces the per-attempt hard ceiling.
type Registry struct {
	mu      sync.RWMutex
	probers map[domain.MonitorType]Prober
	grace   time.Duration
}

// NewRegistry returns a registry with the built-in http, keyword, tcp and dns probers.
func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGrace
	}
	httpChecker := NewHTTPChecker()
	r := &Registry{probers: make(map[domain.MonitorType]Prober), grace: grace}
	r.Register(domain.TypeHTTP, httpChecker)
	r.Register(domain.TypeKeyword, httpChecker)
	r.Register(domain.TypeTCP, NewTCPChecker())
	r.Register(domain.TypeDNS, NewDNSChecker())
	return r
}

func (r *Registry) Register(t domain.MonitorType, p Prober) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probers[t.Canonical()] = p
}

func (r *Registry) Supports(t domain.MonitorType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.probers[t.Canonical()]
	return ok
}

// Probe runs one attempt. It always returns within m.Timeout plus the grace period,
// even when the underlying transport ignores cancellation.
func (r *Registry) Probe(ctx context.Context, m domain.Monitor) Result {
	start := time.Now()
	r.mu.RLock()
	p, ok := r.probers[m.Type.Canonical()]
	r.mu.RUnlock()
	if !ok {
		return failure(start, fmt.Sprintf("unsupported monitor type %q", m.Type))
	}
	return guard(ctx, p, m, r.grace)
}

func guard(ctx context.Context, p Prober, m domain.Monitor, grace time.Duration) Result {
	start := time.Now()
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultTimeout
	}
	m.Timeout = timeout

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- failure(start, fmt.Sprintf("probe panic: %v", rec))
			}
		}()
		done <- p.Probe(pctx, m)
	}()

	ceiling := time.NewTimer(timeout + grace)
	defer ceiling.Stop()

	select {
	case res := <-done:
		if res.Latency <= 0 {
			res.Latency = time.Since(start)
		}
		return res
	case <-ceiling.C:
		return failure(start, fmt.Sprintf("timeout: no result within %s", timeout))
	}
}
