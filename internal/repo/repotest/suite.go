// Package repotest holds the behavioural checks every repo.Store backend must pass.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

// Run exercises a fresh store returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) repo.Store) {
	t.Run("MonitorsRoundTrip", func(t *testing.T) { monitorsRoundTrip(t, open(t)) })
	t.Run("StatusUpdate", func(t *testing.T) { statusUpdate(t, open(t)) })
	t.Run("HistoryNewestFirst", func(t *testing.T) { historyNewestFirst(t, open(t)) })
	t.Run("IncidentLifecycle", func(t *testing.T) { incidentLifecycle(t, open(t)) })
	t.Run("SingleOpenIncident", func(t *testing.T) { singleOpenIncident(t, open(t)) })
	t.Run("EnabledChannels", func(t *testing.T) { enabledChannels(t, open(t)) })
}

func Monitor(id string) domain.Monitor {
	return domain.Monitor{
		ID:       domain.MonitorID(id),
		Name:     "monitor " + id,
		Type:     domain.TypeHTTP,
		Target:   "https://example.com/" + id,
		Interval: time.Minute,
		Retries:  1,
		HTTP:     domain.HTTPOptions{Headers: map[string]string{"X-Id": id}, AcceptedStatusCodes: []int{200, 204}},
		Active:   true,
	}.WithDefaults()
}

func monitorsRoundTrip(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a, b := Monitor("a"), Monitor("b")
	b.Active = false
	for _, m := range []domain.Monitor{a, b} {
		if err := s.UpsertMonitor(ctx, m); err != nil {
			t.Fatalf("UpsertMonitor(%s): %v", m.ID, err)
		}
	}

	active, err := s.ListActiveMonitors(ctx)
	if err != nil {
		t.Fatalf("ListActiveMonitors: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a" {
		t.Fatalf("want only monitor a active, got %+v", active)
	}
	got := active[0]
	if got.Target != a.Target || got.Interval != a.Interval || got.Timeout != a.Timeout || got.Retries != 1 {
		t.Fatalf("config not preserved: %+v", got)
	}
	if got.HTTP.Headers["X-Id"] != "a" || len(got.HTTP.AcceptedStatusCodes) != 2 {
		t.Fatalf("http options not preserved: %+v", got.HTTP)
	}

	a.Name = "renamed"
	if err := s.UpsertMonitor(ctx, a); err != nil {
		t.Fatalf("UpsertMonitor update: %v", err)
	}
	m, err := s.GetMonitor(ctx, "a")
	if err != nil || m.Name != "renamed" {
		t.Fatalf("GetMonitor: %+v err=%v", m, err)
	}

	if err := s.DeleteMonitor(ctx, "a"); err != nil {
		t.Fatalf("DeleteMonitor: %v", err)
	}
	if _, err := s.GetMonitor(ctx, "a"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}

func statusUpdate(t *testing.T, s repo.Store) {
	ctx := context.Background()
	if err := s.UpsertMonitor(ctx, Monitor("a")); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := domain.StatusUpdate{
		Status:       domain.StatusDown,
		LastChecked:  at,
		ResponseTime: 150 * time.Millisecond,
		CheckCount:   3,
		FailCount:    1,
		Uptime:       66.67,
	}
	if err := s.UpdateMonitorStatus(ctx, "a", u); err != nil {
		t.Fatalf("UpdateMonitorStatus: %v", err)
	}
	m, err := s.GetMonitor(ctx, "a")
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if m.Status != domain.StatusDown || !m.LastChecked.Equal(at) || m.LastResponseTime != u.ResponseTime ||
		m.CheckCount != 3 || m.FailCount != 1 || m.Uptime != 66.67 {
		t.Fatalf("status fields not persisted: %+v", m)
	}
	if err := s.UpdateMonitorStatus(ctx, "missing", u); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown monitor, got %v", err)
	}
}

func historyNewestFirst(t *testing.T, s repo.Store) {
	ctx := context.Background()
	if err := s.UpsertMonitor(ctx, Monitor("a")); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	statuses := []domain.Status{domain.StatusDown, domain.StatusDown, domain.StatusUp}
	for i, st := range statuses {
		e := &domain.StatusHistoryEntry{
			MonitorID:    "a",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Status:       st,
			ResponseTime: time.Duration(i+1) * time.Millisecond,
			StatusCode:   500,
			Error:        "boom",
		}
		if err := s.AppendStatusHistory(ctx, e); err != nil {
			t.Fatalf("AppendStatusHistory: %v", err)
		}
		if e.ID == "" {
			t.Fatal("expected history id to be assigned")
		}
	}
	all, err := s.ListStatusHistory(ctx, "a", 0)
	if err != nil {
		t.Fatalf("ListStatusHistory: %v", err)
	}
	if len(all) != 3 || all[0].Status != domain.StatusUp || all[2].Status != domain.StatusDown {
		t.Fatalf("unexpected history %+v", all)
	}
	if !all[0].Timestamp.Equal(base.Add(2*time.Minute)) || all[0].ResponseTime != 3*time.Millisecond {
		t.Fatalf("entry fields not preserved: %+v", all[0])
	}
	two, err := s.ListStatusHistory(ctx, "a", 2)
	if err != nil || len(two) != 2 {
		t.Fatalf("limit not honored: %d err=%v", len(two), err)
	}
}

func incidentLifecycle(t *testing.T, s repo.Store) {
	ctx := context.Background()
	none, err := s.FindOpenIncident(ctx, "a")
	if err != nil || none != nil {
		t.Fatalf("want nil, nil for no incident, got %+v err=%v", none, err)
	}

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	inc := &domain.Incident{
		MonitorID:   "a",
		Title:       "Monitor Down: a",
		Description: "down",
		Status:      domain.IncidentInvestigating,
		Severity:    domain.SeverityMajor,
		StartTime:   start,
		Updates: []domain.IncidentUpdate{{
			ID: "u1", Message: "opened", Status: domain.IncidentInvestigating, Timestamp: start,
		}},
	}
	id, err := s.CreateIncident(ctx, inc)
	if err != nil || id == "" {
		t.Fatalf("CreateIncident: id=%q err=%v", id, err)
	}

	open, err := s.FindOpenIncident(ctx, "a")
	if err != nil || open == nil || open.ID != id || len(open.Updates) != 1 {
		t.Fatalf("FindOpenIncident: %+v err=%v", open, err)
	}

	end := start.Add(2 * time.Minute)
	resolved := domain.IncidentResolved
	dur := end.Sub(start)
	patch := domain.IncidentPatch{
		Status:   &resolved,
		EndTime:  &end,
		Duration: &dur,
		AppendUpdates: []domain.IncidentUpdate{{
			ID: "u2", Message: "resolved", Status: domain.IncidentResolved, Timestamp: end,
		}},
	}
	if err := s.UpdateIncident(ctx, id, patch); err != nil {
		t.Fatalf("UpdateIncident: %v", err)
	}
	if open, _ := s.FindOpenIncident(ctx, "a"); open != nil {
		t.Fatalf("incident should be closed, got %+v", open)
	}

	list, err := s.ListIncidents(ctx, "a")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListIncidents: %+v err=%v", list, err)
	}
	got := list[0]
	if got.Status != domain.IncidentResolved || got.EndTime == nil || !got.EndTime.Equal(end) || got.Duration != 2*time.Minute {
		t.Fatalf("resolution not stored: %+v", got)
	}
	if len(got.Updates) != 2 || got.Updates[1].Message != "resolved" {
		t.Fatalf("updates not appended in order: %+v", got.Updates)
	}

	if err := s.UpdateIncident(ctx, "nope", patch); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func singleOpenIncident(t *testing.T, s repo.Store) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func() *domain.Incident {
		return &domain.Incident{MonitorID: "a", Title: "t", Status: domain.IncidentInvestigating, Severity: domain.SeverityMajor, StartTime: at}
	}
	if _, err := s.CreateIncident(ctx, mk()); err != nil {
		t.Fatalf("first CreateIncident: %v", err)
	}
	if _, err := s.CreateIncident(ctx, mk()); !errors.Is(err, repo.ErrIncidentOpen) {
		t.Fatalf("want ErrIncidentOpen, got %v", err)
	}
	other := mk()
	other.MonitorID = "b"
	if _, err := s.CreateIncident(ctx, other); err != nil {
		t.Fatalf("other monitor should be independent: %v", err)
	}
}

func enabledChannels(t *testing.T, s repo.Store) {
	ctx := context.Background()
	channels := []domain.NotificationChannel{
		{ID: "c1", Type: domain.ChannelSlack, Name: "ops", Enabled: true, Config: map[string]any{"webhook_url": "http://x"}},
		{ID: "c2", Type: domain.ChannelEmail, Name: "off", Enabled: false},
		{ID: "c3", Type: domain.ChannelWebhook, Name: "only-b", Enabled: true, MonitorIDs: []domain.MonitorID{"b"}},
	}
	for _, c := range channels {
		if err := s.UpsertChannel(ctx, c); err != nil {
			t.Fatalf("UpsertChannel(%s): %v", c.ID, err)
		}
	}
	got, err := s.ListEnabledChannels(ctx, "a")
	if err != nil {
		t.Fatalf("ListEnabledChannels: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" || got[0].ConfigString("webhook_url") != "http://x" {
		t.Fatalf("monitor a channels: %+v", got)
	}
	got, _ = s.ListEnabledChannels(ctx, "b")
	if len(got) != 2 {
		t.Fatalf("monitor b should see c1 and c3, got %+v", got)
	}
}
