// Package status decides a monitor's status from probe outcomes and keeps its counters.
package status

import (
	"math"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/probe"
)

// Decision is the outcome of evaluating one attempt or a whole cycle.
type Decision struct {
	Status     domain.Status
	Transition bool
	// Final reports whether the cycle is over: a success, or the retry budget is spent.
	Final bool
	// Attempts is the number of probe attempts that produced this decision.
	Attempts int
	// Result is the attempt that decided the cycle.
	Result probe.Result
}

// Step applies one attempt. attempt is 1-based; a failure only counts as down once
// attempt reaches retries+1.
func Step(prev domain.Status, success bool, attempt, retries int) Decision {
	if retries < 0 {
		retries = 0
	}
	switch {
	case success:
		return Decision{Status: domain.StatusUp, Transition: prev != domain.StatusUp, Final: true, Attempts: attempt}
	case attempt >= retries+1:
		return Decision{Status: domain.StatusDown, Transition: prev != domain.StatusDown, Final: true, Attempts: attempt}
	default:
		return Decision{Status: prev, Attempts: attempt}
	}
}

// Fold reduces the attempts of one cycle, in order, to the cycle's decision.
// Attempts after the first final one are ignored. A cycle cut short before the
// retry budget is spent is not final and keeps prev.
func Fold(prev domain.Status, results []probe.Result, retries int) Decision {
	d := Decision{Status: prev}
	for i, r := range results {
		d = Step(prev, r.Success, i+1, retries)
		d.Result = r
		if d.Final {
			return d
		}
	}
	return d
}

// Counters are the cumulative per-monitor check counters.
type Counters struct {
	Check  int64
	Fail   int64
	Uptime float64
}

// FromMonitor reads the persisted counters of m.
func FromMonitor(m domain.Monitor) Counters {
	return Counters{Check: m.CheckCount, Fail: m.FailCount, Uptime: Uptime(m.CheckCount, m.FailCount)}
}

// Record counts one completed cycle.
func (c Counters) Record(up bool) Counters {
	c.Check++
	if !up {
		c.Fail++
	}
	c.Uptime = Uptime(c.Check, c.Fail)
	return c
}

// Uptime is round((check-fail)/check*100, 2) clamped to [0, 100]. A monitor never checked reports 100.
func Uptime(check, fail int64) float64 {
	if check <= 0 {
		return 100
	}
	if fail < 0 {
		fail = 0
	}
	if fail > check {
		fail = check
	}
	u := float64(check-fail) / float64(check) * 100
	u = math.Round(u*100) / 100
	return math.Max(0, math.Min(100, u))
}

// Skippable reports whether a cycle for m must not probe at all.
func Skippable(m domain.Monitor) bool {
	if !m.Active {
		return true
	}
	return m.Status == domain.StatusPaused || m.Status == domain.StatusMaintenance
}
