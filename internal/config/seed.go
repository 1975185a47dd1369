package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

// Seed is the declarative list of monitors, channels and maintenance windows.
//
//	monitors:
//	  - id: api
//	    name: API
//	    type: https
//	    target: https://api.example.com/health
//	    interval: 60s
//	    retries: 1
//	channels:
//	  - id: ops
//	    type: slack
//	    config: {webhook_url: https://hooks.slack.com/services/...}
//	maintenance:
//	  - id: upgrade
//	    monitors: [api]
//	    start: 2025-05-01T22:00:00Z
//	    end: 2025-05-01T23:00:00Z
type Seed struct {
	Monitors    []domain.Monitor
	Channels    []domain.NotificationChannel
	Maintenance []domain.MaintenanceWindow
}

// seedMonitor and seedChannel default active/enabled to true when the key is absent.
type seedMonitor domain.Monitor

func (s *seedMonitor) UnmarshalYAML(n *yaml.Node) error {
	type plain domain.Monitor
	p := plain{Active: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = seedMonitor(p)
	return nil
}

type seedChannel domain.NotificationChannel

func (s *seedChannel) UnmarshalYAML(n *yaml.Node) error {
	type plain domain.NotificationChannel
	p := plain{Enabled: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = seedChannel(p)
	return nil
}

type seedFile struct {
	Monitors    []seedMonitor              `yaml:"monitors"`
	Channels    []seedChannel              `yaml:"channels"`
	Maintenance []domain.MaintenanceWindow `yaml:"maintenance"`
}

func LoadSeed(path string) (*Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(b)
}

// ParseSeed decodes and validates a seed document. Unknown top-level keys are rejected.
func ParseSeed(b []byte) (*Seed, error) {
	var f seedFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	s := &Seed{Maintenance: f.Maintenance}
	for _, m := range f.Monitors {
		s.Monitors = append(s.Monitors, domain.Monitor(m).WithDefaults())
	}
	for _, c := range f.Channels {
		s.Channels = append(s.Channels, domain.NotificationChannel(c))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

var knownChannels = map[domain.ChannelType]bool{
	domain.ChannelEmail: true, domain.ChannelSlack: true, domain.ChannelDiscord: true,
	domain.ChannelWebhook: true, domain.ChannelSMS: true, domain.ChannelTelegram: true,
}

// Validate reports every problem in the seed at once.
func (s *Seed) Validate() error {
	var err error
	seen := map[domain.MonitorID]bool{}
	for _, m := range s.Monitors {
		if seen[m.ID] {
			err = multierr.Append(err, fmt.Errorf("duplicate monitor id %q", m.ID))
		}
		seen[m.ID] = true
		err = multierr.Append(err, m.Validate())
	}
	for _, c := range s.Channels {
		if c.ID == "" {
			err = multierr.Append(err, errors.New("channel id is required"))
		}
		if !knownChannels[c.Type] {
			err = multierr.Append(err, fmt.Errorf("channel %q: unknown type %q", c.ID, c.Type))
		}
	}
	for _, w := range s.Maintenance {
		if !w.End.After(w.Start) {
			err = multierr.Append(err, fmt.Errorf("maintenance window %q ends before it starts", w.ID))
		}
	}
	return err
}

// Apply upserts the seed into the store. Status and counters of monitors that already
// exist are kept. A seed may pin the status to paused or maintenance; dropping the pin
// releases the monitor back to pending.
func (s *Seed) Apply(ctx context.Context, store repo.Admin) error {
	for _, m := range s.Monitors {
		cur, err := store.GetMonitor(ctx, m.ID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			m.Status = pinned(m.Status)
		case err != nil:
			return fmt.Errorf("get monitor %s: %w", m.ID, err)
		default:
			st := pinned(m.Status)
			if st == domain.StatusPending && cur.Status != domain.StatusPaused && cur.Status != domain.StatusMaintenance {
				st = cur.Status
			}
			m.Apply(domain.StatusUpdate{
				Status:       st,
				LastChecked:  cur.LastChecked,
				ResponseTime: cur.LastResponseTime,
				CheckCount:   cur.CheckCount,
				FailCount:    cur.FailCount,
				Uptime:       cur.Uptime,
			})
		}
		if err := store.UpsertMonitor(ctx, m); err != nil {
			return fmt.Errorf("upsert monitor %s: %w", m.ID, err)
		}
	}
	for _, c := range s.Channels {
		if err := store.UpsertChannel(ctx, c); err != nil {
			return fmt.Errorf("upsert channel %s: %w", c.ID, err)
		}
	}
	return nil
}

// pinned keeps only the statuses a seed may set; everything else starts pending.
func pinned(st domain.Status) domain.Status {
	if st == domain.StatusPaused || st == domain.StatusMaintenance {
		return st
	}
	return domain.StatusPending
}
