package status

import (
	"math"
	"math/rand"
	"testing"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/probe"
)

func results(outcomes ...bool) []probe.Result {
	out := make([]probe.Result, len(outcomes))
	for i, ok := range outcomes {
		out[i] = probe.Result{Success: ok}
	}
	return out
}

func TestStep(t *testing.T) {
	tests := []struct {
		name       string
		prev       domain.Status
		success    bool
		attempt    int
		retries    int
		want       domain.Status
		final      bool
		transition bool
	}{
		{"success from pending", domain.StatusPending, true, 1, 0, domain.StatusUp, true, true},
		{"up stays up", domain.StatusUp, true, 1, 2, domain.StatusUp, true, false},
		{"failure with budget left keeps prev", domain.StatusUp, false, 1, 2, domain.StatusUp, false, false},
		{"last attempt fails goes down", domain.StatusUp, false, 3, 2, domain.StatusDown, true, true},
		{"down stays down", domain.StatusDown, false, 1, 0, domain.StatusDown, true, false},
		{"down recovers", domain.StatusDown, true, 2, 2, domain.StatusUp, true, true},
		{"pending first failure", domain.StatusPending, false, 1, 0, domain.StatusDown, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Step(tt.prev, tt.success, tt.attempt, tt.retries)
			if d.Status != tt.want || d.Final != tt.final || d.Transition != tt.transition {
				t.Fatalf("got %+v", d)
			}
		})
	}
}

func TestFold_TransientFailureNeverTransitions(t *testing.T) {
	for retries := 1; retries <= 5; retries++ {
		for failAt := 0; failAt < retries; failAt++ {
			var seq []bool
			for i := 0; i <= failAt; i++ {
				seq = append(seq, false)
			}
			seq = append(seq, true)
			d := Fold(domain.StatusUp, results(seq...), retries)
			if d.Status != domain.StatusUp || d.Transition {
				t.Fatalf("retries=%d seq=%v: got %+v", retries, seq, d)
			}
			if d.Attempts != len(seq) {
				t.Fatalf("want %d attempts, got %d", len(seq), d.Attempts)
			}
		}
	}
}

func TestFold_DownNeedsRetriesPlusOneFailures(t *testing.T) {
	for n := 0; n <= 5; n++ {
		seq := make([]bool, n+1)
		d := Fold(domain.StatusUp, results(seq...), n)
		if d.Status != domain.StatusDown || !d.Transition || d.Attempts != n+1 {
			t.Fatalf("retries=%d: got %+v", n, d)
		}
		// one fewer failure followed by success stays up
		if n > 0 {
			short := append(make([]bool, n), true)
			if d := Fold(domain.StatusUp, results(short...), n); d.Status != domain.StatusUp {
				t.Fatalf("retries=%d: %d failures then success must stay up, got %+v", n, n, d)
			}
		}
	}
}

func TestFold_IgnoresAttemptsAfterSuccess(t *testing.T) {
	d := Fold(domain.StatusDown, results(false, true, false), 3)
	if d.Status != domain.StatusUp || d.Attempts != 2 {
		t.Fatalf("got %+v", d)
	}
}

func TestFold_TruncatedCycleIsNotFinal(t *testing.T) {
	d := Fold(domain.StatusUp, results(false), 3)
	if d.Final || d.Transition || d.Status != domain.StatusUp || d.Attempts != 1 {
		t.Fatalf("got %+v", d)
	}
	if d := Fold(domain.StatusUp, nil, 0); d.Final || d.Status != domain.StatusUp {
		t.Fatalf("empty cycle: %+v", d)
	}
}

func TestUptime(t *testing.T) {
	cases := []struct {
		check, fail int64
		want        float64
	}{
		{0, 0, 100},
		{1, 0, 100},
		{1, 1, 0},
		{3, 1, 66.67},
		{7, 2, 71.43},
		{5, 9, 0},
	}
	for _, c := range cases {
		if got := Uptime(c.check, c.fail); got != c.want {
			t.Fatalf("Uptime(%d,%d)=%v want %v", c.check, c.fail, got, c.want)
		}
	}
}

func TestCounters_RandomSequencesStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var c Counters
	for i := 0; i < 2000; i++ {
		c = c.Record(rng.Intn(4) != 0)
		if c.Check < c.Fail || c.Fail < 0 {
			t.Fatalf("counter invariant broken: %+v", c)
		}
		want := math.Round(float64(c.Check-c.Fail)/float64(c.Check)*100*100) / 100
		if c.Uptime != want || c.Uptime < 0 || c.Uptime > 100 {
			t.Fatalf("after %d checks uptime=%v want %v", c.Check, c.Uptime, want)
		}
	}
}

func TestCounters_ReloadMatchesUninterrupted(t *testing.T) {
	seq := []bool{true, false, true, true, false, false, true}
	var straight Counters
	for _, up := range seq {
		straight = straight.Record(up)
	}

	var first Counters
	for _, up := range seq[:4] {
		first = first.Record(up)
	}
	m := domain.Monitor{CheckCount: first.Check, FailCount: first.Fail, Uptime: first.Uptime}
	resumed := FromMonitor(m)
	for _, up := range seq[4:] {
		resumed = resumed.Record(up)
	}
	if resumed != straight {
		t.Fatalf("reloaded %+v, uninterrupted %+v", resumed, straight)
	}
}

func TestSkippable(t *testing.T) {
	cases := []struct {
		m    domain.Monitor
		want bool
	}{
		{domain.Monitor{Active: true, Status: domain.StatusUp}, false},
		{domain.Monitor{Active: true, Status: domain.StatusPending}, false},
		{domain.Monitor{Active: false, Status: domain.StatusUp}, true},
		{domain.Monitor{Active: true, Status: domain.StatusPaused}, true},
		{domain.Monitor{Active: true, Status: domain.StatusMaintenance}, true},
	}
	for _, c := range cases {
		if got := Skippable(c.m); got != c.want {
			t.Fatalf("Skippable(%+v)=%v", c.m, got)
		}
	}
}
