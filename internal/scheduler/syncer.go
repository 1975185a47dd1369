package scheduler

import (
	"context"
	"errors"
	"reflect"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

// DefaultSyncInterval is how often the store is reconciled with the scheduled set.
const DefaultSyncInterval = 30 * time.Second

// Syncer keeps the scheduler in line with the store's active monitors.
type Syncer struct {
	Logger   *zap.Logger
	Sched    *Scheduler
	Monitors repo.MonitorStore
	Interval time.Duration
}

func NewSyncer(logger *zap.Logger, sched *Scheduler, ms repo.MonitorStore, interval time.Duration) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{Logger: logger, Sched: sched, Monitors: ms, Interval: interval}
}

// Run does an immediate pass, then one each tick. Stops when ctx is cancelled.
func (y *Syncer) Run(ctx context.Context) {
	t := time.NewTicker(y.Interval)
	defer t.Stop()

	if err := y.SyncOnce(ctx); err != nil {
		y.Logger.Warn("sync_error", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			y.Logger.Info("syncer_stopped")
			return
		case <-t.C:
			if err := y.SyncOnce(ctx); err != nil {
				y.Logger.Warn("sync_error", zap.Error(err))
			}
		}
	}
}

// SyncOnce adds new monitors, removes vanished ones, applies config changes and
// store-side paused or maintenance statuses. Per-monitor problems are combined.
func (y *Syncer) SyncOnce(ctx context.Context) error {
	ms, err := y.Monitors.ListActiveMonitors(ctx)
	if err != nil {
		return err
	}

	var errs error
	want := make(map[domain.MonitorID]bool, len(ms))
	for _, m := range ms {
		want[m.ID] = true
		cur, err := y.Sched.Monitor(m.ID)
		if errors.Is(err, ErrNotFound) {
			if err := y.Sched.Add(m); err != nil && !errors.Is(err, ErrAlreadyScheduled) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		if !sameConfig(cur, m) {
			if err := y.Sched.Update(m); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
		}
		if held(m.Status) {
			errs = multierr.Append(errs, y.Sched.hold(m.ID, m.Status, true))
		} else {
			errs = multierr.Append(errs, y.Sched.release(m.ID, true))
		}
	}

	for _, e := range y.Sched.Snapshot() {
		if !want[e.Monitor.ID] {
			if err := y.Sched.Remove(e.Monitor.ID); err != nil && !errors.Is(err, ErrNotFound) {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// sameConfig compares everything except the fields the scheduler owns.
func sameConfig(a, b domain.Monitor) bool {
	return reflect.DeepEqual(configOf(a), configOf(b))
}

func configOf(m domain.Monitor) domain.Monitor {
	m = m.WithDefaults()
	m.Status = ""
	m.LastChecked = time.Time{}
	m.LastResponseTime = 0
	m.CheckCount = 0
	m.FailCount = 0
	m.Uptime = 0
	// backends decode empty JSON collections differently
	if len(m.HTTP.Headers) == 0 {
		m.HTTP.Headers = nil
	}
	if len(m.HTTP.AcceptedStatusCodes) == 0 {
		m.HTTP.AcceptedStatusCodes = nil
	}
	return m
}
