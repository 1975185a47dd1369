// Package incident opens and resolves incidents on monitor status transitions.
package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/repo"
)

type Manager struct {
	store   repo.IncidentStore
	log     *zap.Logger
	metrics *metrics.Collector

	locks sync.Map // domain.MonitorID -> *sync.Mutex
}

func NewManager(store repo.IncidentStore, log *zap.Logger, m *metrics.Collector) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, log: log, metrics: m}
}

func (mg *Manager) lock(id domain.MonitorID) func() {
	v, _ := mg.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// OnTransition applies a status change. It returns the incident touched, or nil when
// the transition needs no incident work.
func (mg *Manager) OnTransition(ctx context.Context, m domain.Monitor, from, to domain.Status, at time.Time, reason string) (*domain.Incident, error) {
	switch to {
	case domain.StatusDown:
		return mg.open(ctx, m, from, at, reason)
	case domain.StatusUp:
		return mg.resolve(ctx, m, at)
	default:
		return nil, nil
	}
}

func Title(m domain.Monitor) string { return "Monitor Down: " + m.Name }

func Description(m domain.Monitor, reason string) string {
	if reason == "" {
		reason = "check failed"
	}
	return fmt.Sprintf("Monitor %s (%s) is down: %s.", m.Name, m.Target, reason)
}

func (mg *Manager) open(ctx context.Context, m domain.Monitor, from domain.Status, at time.Time, reason string) (*domain.Incident, error) {
	unlock := mg.lock(m.ID)
	defer unlock()

	existing, err := mg.store.FindOpenIncident(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("find open incident: %w", err)
	}
	if existing != nil {
		return mg.appendUpdate(ctx, existing, domain.IncidentUpdate{
			ID:        uuid.NewString(),
			Message:   fmt.Sprintf("Monitor went %s again: %s", domain.StatusDown, Description(m, reason)),
			Status:    existing.Status,
			Timestamp: at,
		})
	}

	severity := m.Severity
	if severity == "" {
		severity = domain.SeverityMajor
	}
	inc := &domain.Incident{
		MonitorID:   m.ID,
		Title:       Title(m),
		Description: Description(m, reason),
		Status:      domain.IncidentInvestigating,
		Severity:    severity,
		StartTime:   at,
		Updates: []domain.IncidentUpdate{{
			ID:        uuid.NewString(),
			Message:   fmt.Sprintf("Monitor changed from %s to %s. Investigating.", from, domain.StatusDown),
			Status:    domain.IncidentInvestigating,
			Timestamp: at,
		}},
	}
	id, err := mg.store.CreateIncident(ctx, inc)
	if errors.Is(err, repo.ErrIncidentOpen) {
		// another writer opened one first; keep theirs
		mg.log.Warn("incident_already_open", zap.String("monitor_id", string(m.ID)))
		return mg.store.FindOpenIncident(ctx, m.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	inc.ID = id
	mg.metrics.IncidentOpened(m.ID)
	mg.log.Info("incident_opened",
		zap.String("monitor_id", string(m.ID)),
		zap.String("incident_id", id),
		zap.String("reason", reason),
	)
	return inc, nil
}

func (mg *Manager) resolve(ctx context.Context, m domain.Monitor, at time.Time) (*domain.Incident, error) {
	unlock := mg.lock(m.ID)
	defer unlock()

	inc, err := mg.store.FindOpenIncident(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("find open incident: %w", err)
	}
	if inc == nil {
		return nil, nil
	}

	resolved := domain.IncidentResolved
	end := at
	dur := end.Sub(inc.StartTime)
	if dur < 0 {
		dur = 0
	}
	patch := domain.IncidentPatch{
		Status:   &resolved,
		EndTime:  &end,
		Duration: &dur,
		AppendUpdates: []domain.IncidentUpdate{{
			ID:        uuid.NewString(),
			Message:   fmt.Sprintf("Monitor is back up after %s.", dur.Round(time.Second)),
			Status:    domain.IncidentResolved,
			Timestamp: at,
		}},
	}
	if err := mg.store.UpdateIncident(ctx, inc.ID, patch); err != nil {
		return nil, fmt.Errorf("resolve incident %s: %w", inc.ID, err)
	}
	patch.ApplyTo(inc)
	mg.log.Info("incident_resolved",
		zap.String("monitor_id", string(m.ID)),
		zap.String("incident_id", inc.ID),
		zap.Duration("duration", dur),
	)
	return inc, nil
}

func (mg *Manager) appendUpdate(ctx context.Context, inc *domain.Incident, u domain.IncidentUpdate) (*domain.Incident, error) {
	patch := domain.IncidentPatch{AppendUpdates: []domain.IncidentUpdate{u}}
	if err := mg.store.UpdateIncident(ctx, inc.ID, patch); err != nil {
		return nil, fmt.Errorf("update incident %s: %w", inc.ID, err)
	}
	patch.ApplyTo(inc)
	return inc, nil
}
