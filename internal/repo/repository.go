package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/uptimemon/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrIncidentOpen is returned by CreateIncident when the monitor already has an open incident.
	ErrIncidentOpen = errors.New("monitor already has an open incident")
)

// Ports (interfaces) used by the engine. Every backend implements all of them.

type MonitorStore interface {
	ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error)
	UpdateMonitorStatus(ctx context.Context, id domain.MonitorID, u domain.StatusUpdate) error
}

type HistoryStore interface {
	AppendStatusHistory(ctx context.Context, e *domain.StatusHistoryEntry) error
}

type IncidentStore interface {
	// FindOpenIncident returns nil, nil when the monitor has no open incident.
	FindOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error)
	CreateIncident(ctx context.Context, inc *domain.Incident) (string, error)
	UpdateIncident(ctx context.Context, id string, p domain.IncidentPatch) error
}

type ChannelStore interface {
	ListEnabledChannels(ctx context.Context, id domain.MonitorID) ([]domain.NotificationChannel, error)
}

// Gateway is everything the scheduling engine reads and writes.
type Gateway interface {
	MonitorStore
	HistoryStore
	IncidentStore
	ChannelStore
}

// Admin is used for seeding, the control API and tests.
type Admin interface {
	UpsertMonitor(ctx context.Context, m domain.Monitor) error
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	DeleteMonitor(ctx context.Context, id domain.MonitorID) error
	UpsertChannel(ctx context.Context, c domain.NotificationChannel) error
	// ListStatusHistory returns the newest entries first. limit <= 0 means no limit.
	ListStatusHistory(ctx context.Context, id domain.MonitorID, limit int) ([]domain.StatusHistoryEntry, error)
	// ListIncidents returns the monitor's incidents oldest first.
	ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error)
	Close() error
}

type Store interface {
	Gateway
	Admin
}
