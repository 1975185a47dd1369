// internal/probe/retrychecker.go
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// RetryChecker runs up to m.Retries+1 attempts, stopping at the first success.
type RetryChecker struct {
	Inner   Prober
	Backoff time.Duration
}

// Attempts returns every attempt made, in order. The slice is never empty.
func (r *RetryChecker) Attempts(ctx context.Context, m domain.Monitor) []Result {
	budget := m.Retries + 1
	if budget < 1 {
		budget = 1
	}
	out := make([]Result, 0, budget)
	for i := 0; i < budget; i++ {
		res := r.Inner.Probe(ctx, m)
		out = append(out, res)
		if res.Success {
			return out
		}
		if ctx.Err() != nil {
			return out
		}
		if i < budget-1 && r.Backoff > 0 {
			select {
			case <-ctx.Done():
				return annotate(out)
			case <-time.After(r.Backoff):
			}
		}
	}
	return annotate(out)
}

// annotate marks the last failure so history shows it was a retry series.
func annotate(out []Result) []Result {
	if n := len(out); n > 1 {
		out[n-1].Message = fmt.Sprintf("%s (after %d attempts)", out[n-1].Message, n)
	}
	return out
}
