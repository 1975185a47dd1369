package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo/memory"
)

const sampleSeed = `
monitors:
  - id: api
    name: API
    type: https
    target: https://api.example.com/health
    interval: 60s
    retries: 1
    http:
      accepted_status_codes: [200, 201]
  - id: db
    name: Database
    type: tcp
    target: db.internal:5432
    interval: 30s
    active: false
  - id: status-page
    name: Status page
    type: keyword
    target: https://status.example.com
    keyword: operational
    interval: 5m
    status: paused
channels:
  - id: ops
    type: slack
    name: Ops
    config:
      webhook_url: https://hooks.slack.com/services/T/B/X
    monitors: [api]
  - id: pager
    type: sms
    enabled: false
maintenance:
  - id: upgrade
    title: DB upgrade
    monitors: [db]
    start: 2025-05-01T22:00:00Z
    end: 2025-05-01T23:00:00Z
`

func TestParseSeed(t *testing.T) {
	s, err := ParseSeed([]byte(sampleSeed))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if len(s.Monitors) != 3 || len(s.Channels) != 2 || len(s.Maintenance) != 1 {
		t.Fatalf("unexpected seed %+v", s)
	}
	api := s.Monitors[0]
	if !api.Active || api.Interval != time.Minute || api.Timeout != 10*time.Second || api.HTTP.Method != "GET" {
		t.Fatalf("api monitor not defaulted: %+v", api)
	}
	if len(api.HTTP.AcceptedStatusCodes) != 2 {
		t.Fatalf("accepted codes lost: %+v", api.HTTP)
	}
	if s.Monitors[1].Active {
		t.Fatal("explicit active: false must be kept")
	}
	if !s.Channels[0].Enabled || s.Channels[1].Enabled {
		t.Fatalf("enabled defaults wrong: %+v", s.Channels)
	}
	if s.Channels[0].ConfigString("webhook_url") == "" || !s.Channels[0].AppliesTo("api") || s.Channels[0].AppliesTo("db") {
		t.Fatalf("channel config wrong: %+v", s.Channels[0])
	}
	w := s.Maintenance[0]
	if !w.Covers("db", time.Date(2025, 5, 1, 22, 30, 0, 0, time.UTC)) || w.Covers("api", w.Start) {
		t.Fatalf("window wrong: %+v", w)
	}
}

func TestParseSeed_RejectsProblems(t *testing.T) {
	bad := `
monitors:
  - id: a
    name: A
    type: carrier-pigeon
    target: x
    interval: 1m
  - id: a
    name: A again
    type: http
    target: https://a.example.com
    interval: 1s
channels:
  - id: c
    type: fax
`
	_, err := ParseSeed([]byte(bad))
	if !errors.Is(err, domain.ErrInvalidMonitor) {
		t.Fatalf("want monitor validation error, got %v", err)
	}

	if _, err := ParseSeed([]byte("monitorz: []\n")); err == nil {
		t.Fatal("unknown top-level key must be rejected")
	}
}

func TestParseSeed_Empty(t *testing.T) {
	s, err := ParseSeed(nil)
	if err != nil || len(s.Monitors) != 0 {
		t.Fatalf("empty seed: %+v err=%v", s, err)
	}
}

func TestSeedApply_KeepsExistingCounters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(sampleSeed), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}

	store := memory.New()
	if err := s.Apply(ctx, store); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := store.UpdateMonitorStatus(ctx, "api", domain.StatusUpdate{
		Status: domain.StatusDown, LastChecked: at, CheckCount: 4, FailCount: 1, Uptime: 75,
	}); err != nil {
		t.Fatalf("UpdateMonitorStatus: %v", err)
	}

	// reapplying, e.g. after a restart, must not reset the monitor
	if err := s.Apply(ctx, store); err != nil {
		t.Fatalf("Apply again: %v", err)
	}
	api, _ := store.GetMonitor(ctx, "api")
	if api.Status != domain.StatusDown || api.CheckCount != 4 || api.Uptime != 75 || !api.LastChecked.Equal(at) {
		t.Fatalf("status fields reset by seed: %+v", api)
	}
	page, _ := store.GetMonitor(ctx, "status-page")
	if page.Status != domain.StatusPaused {
		t.Fatalf("pinned status lost: %s", page.Status)
	}
	chans, _ := store.ListEnabledChannels(ctx, "api")
	if len(chans) != 1 || chans[0].ID != "ops" {
		t.Fatalf("channels not seeded: %+v", chans)
	}
}
