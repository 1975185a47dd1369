package scheduler

import (
	"sync"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Calendar tells the scheduler when a monitor is inside a maintenance window.
type Calendar interface {
	InMaintenance(id domain.MonitorID, at time.Time) bool
}

// Windows is an in-memory Calendar. Safe for concurrent use.
type Windows struct {
	mu      sync.RWMutex
	windows []domain.MaintenanceWindow
}

func NewWindows(w ...domain.MaintenanceWindow) *Windows {
	return &Windows{windows: append([]domain.MaintenanceWindow(nil), w...)}
}

// Set replaces every window.
func (c *Windows) Set(w []domain.MaintenanceWindow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = append([]domain.MaintenanceWindow(nil), w...)
}

func (c *Windows) InMaintenance(id domain.MonitorID, at time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.windows {
		if w.Covers(id, at) {
			return true
		}
	}
	return false
}

// Active returns the windows in effect at t.
func (c *Windows) Active(at time.Time) []domain.MaintenanceWindow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.MaintenanceWindow
	for _, w := range c.windows {
		if !at.Before(w.Start) && at.Before(w.End) {
			out = append(out, w)
		}
	}
	return out
}
