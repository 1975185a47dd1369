package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validHTTP() Monitor {
	return Monitor{
		ID:       "m1",
		Name:     "example",
		Type:     TypeHTTP,
		Target:   "https://example.com",
		Interval: 60 * time.Second,
		Active:   true,
	}.WithDefaults()
}

func TestWithDefaults_FillsHTTPFields(t *testing.T) {
	m := validHTTP()
	if m.Status != StatusPending {
		t.Fatalf("want pending, got %q", m.Status)
	}
	if m.HTTP.Method != "GET" || len(m.HTTP.AcceptedStatusCodes) != 1 || m.HTTP.AcceptedStatusCodes[0] != 200 {
		t.Fatalf("http defaults wrong: %+v", m.HTTP)
	}
	if m.Timeout != DefaultTimeout || m.HTTP.MaxRedirects == nil || *m.HTTP.MaxRedirects != DefaultMaxRedirects {
		t.Fatalf("timeout/redirect defaults wrong: %+v", m)
	}
	if m.Severity != SeverityMajor {
		t.Fatalf("want major severity, got %q", m.Severity)
	}
}

func TestWithDefaults_KeepsExplicitZeroRedirects(t *testing.T) {
	none := 0
	m := Monitor{ID: "r", Name: "r", Type: TypeHTTP, Target: "https://example.com", Interval: time.Minute, Active: true}
	m.HTTP.MaxRedirects = &none
	m = m.WithDefaults()
	if m.HTTP.RedirectLimit() != 0 {
		t.Fatalf("explicit 0 must survive defaults, got %d", m.HTTP.RedirectLimit())
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	neg := -1
	m.HTTP.MaxRedirects = &neg
	if err := m.Validate(); !errors.Is(err, ErrInvalidMonitor) {
		t.Fatalf("want invalid monitor for negative redirects, got %v", err)
	}
}

func TestWithDefaults_TimeoutCappedAtInterval(t *testing.T) {
	m := Monitor{ID: "d", Name: "d", Type: TypeDNS, Target: "example.com", Interval: 5 * time.Second}.WithDefaults()
	if m.Timeout != 5*time.Second {
		t.Fatalf("want timeout capped at 5s, got %s", m.Timeout)
	}
	if m.DNS.RecordType != "A" {
		t.Fatalf("want A record default, got %q", m.DNS.RecordType)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Monitor)
		wantErr string
	}{
		{"ok", func(*Monitor) {}, ""},
		{"unknown type", func(m *Monitor) { m.Type = "ping" }, "unknown protocol type"},
		{"bad url", func(m *Monitor) { m.Target = "example.com" }, "malformed url"},
		{"interval floor", func(m *Monitor) { m.Interval = time.Second }, "floor"},
		{"keyword missing", func(m *Monitor) { m.Type = TypeKeyword }, "needs a keyword"},
		{"tcp no port", func(m *Monitor) { m.Type = TypeTCP; m.Target = "db.internal" }, "host:port"},
		{"tcp with port", func(m *Monitor) { m.Type = TypeTCP; m.Target = "db.internal"; m.Port = 5432 }, ""},
		{"dns url", func(m *Monitor) { m.Type = TypeDNS; m.Target = "https://x" }, "malformed domain"},
		{"dns type", func(m *Monitor) { m.Type = TypeDNS; m.Target = "example.com"; m.DNS.RecordType = "ZZZ" }, "record type"},
		{"counters", func(m *Monitor) { m.CheckCount = 1; m.FailCount = 2 }, "counters"},
		{"status", func(m *Monitor) { m.Status = "unknown" }, "unknown status"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := validHTTP()
			c.mutate(&m)
			err := m.Validate()
			if c.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("want error containing %q", c.wantErr)
			}
			if !errors.Is(err, ErrInvalidMonitor) {
				t.Fatalf("want ErrInvalidMonitor, got %v", err)
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Fatalf("want %q in %q", c.wantErr, err.Error())
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	m := Monitor{Type: "bogus"}
	err := m.Validate()
	if err == nil {
		t.Fatal("want error")
	}
	for _, want := range []string{"id is required", "name is required", "unknown protocol type"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %q", want, err.Error())
		}
	}
}

func TestMonitor_StatusFieldsSurviveJSON(t *testing.T) {
	want := validHTTP()
	want.Apply(StatusUpdate{
		Status:       StatusDown,
		LastChecked:  time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		ResponseTime: 120 * time.Millisecond,
		CheckCount:   10,
		FailCount:    3,
		Uptime:       70,
	})
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Monitor
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != want.Status || got.CheckCount != 10 || got.FailCount != 3 || got.Uptime != 70 ||
		!got.LastChecked.Equal(want.LastChecked) || got.LastResponseTime != want.LastResponseTime {
		t.Fatalf("mismatch after round-trip:\nwant=%+v\ngot =%+v", want, got)
	}
}

func TestMaintenanceWindow_Covers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := MaintenanceWindow{MonitorIDs: []MonitorID{"a"}, Start: start, End: start.Add(time.Hour)}
	if !w.Covers("a", start) {
		t.Fatal("window should cover its start")
	}
	if w.Covers("a", start.Add(time.Hour)) {
		t.Fatal("window end is exclusive")
	}
	if w.Covers("b", start.Add(time.Minute)) {
		t.Fatal("window should not cover other monitors")
	}
	all := MaintenanceWindow{Start: start, End: start.Add(time.Hour)}
	if !all.Covers("b", start.Add(time.Minute)) {
		t.Fatal("empty monitor list covers everything")
	}
}

func TestIncidentPatch_ApplyTo(t *testing.T) {
	inc := &Incident{ID: "i", Status: IncidentInvestigating, StartTime: time.Unix(0, 0)}
	resolved := IncidentResolved
	end := time.Unix(120, 0)
	d := 120 * time.Second
	IncidentPatch{Status: &resolved, EndTime: &end, Duration: &d,
		AppendUpdates: []IncidentUpdate{{Message: "back", Status: resolved}}}.ApplyTo(inc)
	if inc.Open() || inc.EndTime == nil || !inc.EndTime.Equal(end) || inc.Duration != d || len(inc.Updates) != 1 {
		t.Fatalf("patch not applied: %+v", inc)
	}
}
