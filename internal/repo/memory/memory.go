package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

type Store struct {
	mu        sync.RWMutex
	monitors  map[domain.MonitorID]*domain.Monitor
	history   map[domain.MonitorID][]domain.StatusHistoryEntry
	incidents map[string]*domain.Incident
	order     []string // incident ids in creation order
	channels  map[string]domain.NotificationChannel
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		monitors:  make(map[domain.MonitorID]*domain.Monitor),
		history:   make(map[domain.MonitorID][]domain.StatusHistoryEntry),
		incidents: make(map[string]*domain.Incident),
		channels:  make(map[string]domain.NotificationChannel),
	}
}

// ---- MonitorStore ----

func (m *Store) ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if mon.Active {
			out = append(out, clone(*mon))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) UpdateMonitorStatus(ctx context.Context, id domain.MonitorID, u domain.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	mon.Apply(u)
	return nil
}

// ---- HistoryStore ----

func (m *Store) AppendStatusHistory(ctx context.Context, e *domain.StatusHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[e.MonitorID] = append(m.history[e.MonitorID], *e)
	return nil
}

// ---- IncidentStore ----

func (m *Store) FindOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inc := m.openLocked(id); inc != nil {
		c := cloneIncident(*inc)
		return &c, nil
	}
	return nil, nil
}

func (m *Store) openLocked(id domain.MonitorID) *domain.Incident {
	for _, iid := range m.order {
		inc := m.incidents[iid]
		if inc.MonitorID == id && inc.Open() {
			return inc
		}
	}
	return nil
}

func (m *Store) CreateIncident(ctx context.Context, inc *domain.Incident) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc.Open() && m.openLocked(inc.MonitorID) != nil {
		return "", repo.ErrIncidentOpen
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	c := cloneIncident(*inc)
	m.incidents[c.ID] = &c
	m.order = append(m.order, c.ID)
	return c.ID, nil
}

func (m *Store) UpdateIncident(ctx context.Context, id string, p domain.IncidentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.ApplyTo(inc)
	return nil
}

// ---- ChannelStore ----

func (m *Store) ListEnabledChannels(ctx context.Context, id domain.MonitorID) ([]domain.NotificationChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.NotificationChannel
	for _, c := range m.channels {
		if c.Enabled && c.AppliesTo(id) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Admin ----

func (m *Store) UpsertMonitor(ctx context.Context, mon domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := clone(mon)
	m.monitors[mon.ID] = &c
	return nil
}

func (m *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := clone(*mon)
	return &c, nil
}

func (m *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.monitors, id)
	return nil
}

func (m *Store) UpsertChannel(ctx context.Context, c domain.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[c.ID] = c
	return nil
}

func (m *Store) ListStatusHistory(ctx context.Context, id domain.MonitorID, limit int) ([]domain.StatusHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[id]
	out := make([]domain.StatusHistoryEntry, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, h[i])
	}
	return out, nil
}

func (m *Store) ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, iid := range m.order {
		if inc := m.incidents[iid]; inc.MonitorID == id {
			out = append(out, cloneIncident(*inc))
		}
	}
	return out, nil
}

func (m *Store) Close() error { return nil }

func clone(mon domain.Monitor) domain.Monitor {
	if mon.HTTP.Headers != nil {
		h := make(map[string]string, len(mon.HTTP.Headers))
		for k, v := range mon.HTTP.Headers {
			h[k] = v
		}
		mon.HTTP.Headers = h
	}
	mon.HTTP.AcceptedStatusCodes = append([]int(nil), mon.HTTP.AcceptedStatusCodes...)
	if mon.HTTP.MaxRedirects != nil {
		n := *mon.HTTP.MaxRedirects
		mon.HTTP.MaxRedirects = &n
	}
	return mon
}

func cloneIncident(inc domain.Incident) domain.Incident {
	inc.Updates = append([]domain.IncidentUpdate(nil), inc.Updates...)
	if inc.EndTime != nil {
		t := *inc.EndTime
		inc.EndTime = &t
	}
	return inc
}
