package probe

import (
	"context"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Result is the unified outcome of a single probe attempt.
//
// Fields:
//   - Latency: wall-clock time from attempt start to result, always set.
//   - StatusCode: HTTP status code when available; 0 for tcp/dns and transport errors.
//   - Message: failure reason, or a short success description.
//   - CertExpiry: leaf certificate NotAfter for https targets; zero otherwise.
type Result struct {
	Success    bool
	Latency    time.Duration
	StatusCode int
	Message    string
	CertExpiry time.Time
}

func (r Result) LatencyMS() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}

// Prober performs one probe attempt against a monitor's target.
// Implementations never return an error: every failure is folded into Result.
type Prober interface {
	Probe(ctx context.Context, m domain.Monitor) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, m domain.Monitor) Result

func (f ProberFunc) Probe(ctx context.Context, m domain.Monitor) Result { return f(ctx, m) }

func failure(start time.Time, msg string) Result {
	return Result{Success: false, Latency: time.Since(start), Message: msg}
}
