package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/events"
	"github.com/hamed0406/uptimemon/internal/notify"
	"github.com/hamed0406/uptimemon/internal/status"
)

// Outcome describes what one cycle did.
type Outcome struct {
	MonitorID domain.MonitorID `json:"monitor_id"`
	// Skipped is set when no probe ran: inactive, paused, or under maintenance.
	Skipped bool `json:"skipped"`
	// Discarded is set when the monitor was removed or paused while probing.
	Discarded  bool             `json:"discarded"`
	Status     domain.Status    `json:"status"`
	Previous   domain.Status    `json:"previous"`
	Transition bool             `json:"transition"`
	Attempts   int              `json:"attempts"`
	Message    string           `json:"message,omitempty"`
	Uptime     float64          `json:"uptime"`
	At         time.Time        `json:"at"`
	Incident   *domain.Incident `json:"incident,omitempty"`
}

func (s *Scheduler) cycle(ctx context.Context, t *task) Outcome {
	t.run.Lock()
	defer t.run.Unlock()

	m, gen, removed := t.snapshot()
	out := Outcome{MonitorID: m.ID, Previous: m.Status, Status: m.Status, Uptime: m.Uptime}
	if removed {
		out.Discarded = true
		return out
	}
	start := s.opts.Now()
	if status.Skippable(m) || s.calendar.InMaintenance(m.ID, start) {
		out.Skipped = true
		out.At = start
		s.log.Debug("cycle_skipped", zap.String("monitor_id", string(m.ID)), zap.String("status", string(m.Status)))
		return out
	}

	began := time.Now()
	results := s.retry.Attempts(ctx, m)
	elapsed := time.Since(began)
	at := s.opts.Now()

	d := status.Fold(m.Status, results, m.Retries)
	if ctx.Err() != nil || !d.Final {
		// cut short by shutdown: nothing about the target was learned
		out.Discarded = true
		s.log.Info("cycle_cancelled",
			zap.String("monitor_id", string(m.ID)),
			zap.Int("attempts", len(results)),
			zap.NamedError("cause", ctx.Err()),
		)
		return out
	}
	up := d.Status == domain.StatusUp
	counts := status.FromMonitor(m).Record(up)
	update := domain.StatusUpdate{
		Status:       d.Status,
		LastChecked:  at,
		ResponseTime: d.Result.Latency,
		CheckCount:   counts.Check,
		FailCount:    counts.Fail,
		Uptime:       counts.Uptime,
	}

	// In-memory state is authoritative for the next cycle even when persisting fails.
	t.mu.Lock()
	if t.removed || t.gen != gen {
		t.mu.Unlock()
		out.Discarded = true
		s.log.Info("cycle_discarded", zap.String("monitor_id", string(m.ID)))
		return out
	}
	t.monitor.Apply(update)
	m = t.monitor
	t.mu.Unlock()

	out.Status = d.Status
	out.Transition = d.Transition
	out.Attempts = d.Attempts
	out.Message = d.Result.Message
	out.Uptime = counts.Uptime
	out.At = at

	entry := &domain.StatusHistoryEntry{
		MonitorID:    m.ID,
		Timestamp:    at,
		Status:       d.Status,
		ResponseTime: d.Result.Latency,
		StatusCode:   d.Result.StatusCode,
	}
	if !up {
		entry.Error = d.Result.Message
	}
	sctx, cancel := s.storeCtx(ctx)
	err := s.store.AppendStatusHistory(sctx, entry)
	cancel()
	if err != nil {
		s.metrics.StorageError("append_history")
		s.log.Error("history_append_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
	}
	sctx, cancel = s.storeCtx(ctx)
	err = s.store.UpdateMonitorStatus(sctx, m.ID, update)
	cancel()
	if err != nil {
		s.metrics.StorageError("update_status")
		s.log.Error("status_update_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
	}

	s.metrics.ObserveCycle(m, elapsed, up, counts.Uptime)
	if !d.Result.CertExpiry.IsZero() {
		s.metrics.CertExpiry(m.ID, d.Result.CertExpiry, at)
	}

	s.log.Debug("cycle_completed",
		zap.String("monitor_id", string(m.ID)),
		zap.String("status", string(d.Status)),
		zap.Int("attempts", d.Attempts),
		zap.Int("status_code", d.Result.StatusCode),
		zap.Float64("latency_ms", d.Result.LatencyMS()),
		zap.Float64("uptime", counts.Uptime),
		zap.String("reason", d.Result.Message),
	)

	if d.Transition {
		out.Incident = s.transition(ctx, t, m, out.Previous, d, at)
	}
	return out
}

// transition runs the incident, event and notification side effects of a status change.
func (s *Scheduler) transition(ctx context.Context, t *task, m domain.Monitor, from domain.Status, d status.Decision, at time.Time) *domain.Incident {
	s.log.Info("status_changed",
		zap.String("monitor_id", string(m.ID)),
		zap.String("from", string(from)),
		zap.String("to", string(d.Status)),
		zap.String("reason", d.Result.Message),
	)

	var inc *domain.Incident
	if s.incidents != nil {
		sctx, cancel := s.storeCtx(ctx)
		var err error
		inc, err = s.incidents.OnTransition(sctx, m, from, d.Status, at, d.Result.Message)
		cancel()
		if err != nil {
			s.metrics.StorageError("incident")
			s.log.Error("incident_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		}
	}

	ev := events.Transition{
		MonitorID:  m.ID,
		Name:       m.Name,
		From:       from,
		To:         d.Status,
		At:         at,
		Reason:     d.Result.Message,
		StatusCode: d.Result.StatusCode,
	}
	if inc != nil {
		ev.IncidentID = inc.ID
	}
	pctx, cancel := s.storeCtx(ctx)
	err := s.events.Publish(pctx, ev)
	cancel()
	if err != nil {
		s.log.Warn("event_publish_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
	}

	if s.notifier == nil || !s.shouldNotify(from, d.Status) {
		return inc
	}
	if _, _, removed := t.snapshot(); removed {
		return inc
	}
	lctx, cancel := s.storeCtx(ctx)
	channels, err := s.store.ListEnabledChannels(lctx, m.ID)
	cancel()
	if err != nil {
		s.metrics.StorageError("list_channels")
		s.log.Error("channel_list_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		return inc
	}
	s.notifier.Notify(channels, notify.Payload{
		MonitorID:      m.ID,
		MonitorName:    m.Name,
		Target:         m.Target,
		Status:         d.Status,
		PreviousStatus: from,
		Timestamp:      at,
		Latency:        d.Result.Latency,
		Uptime:         m.Uptime,
		Reason:         d.Result.Message,
	})
	return inc
}

// shouldNotify: the first observation of a pending monitor only notifies when it is down,
// unless NotifyOnFirstUp is set.
func (s *Scheduler) shouldNotify(from, to domain.Status) bool {
	if from == domain.StatusPending && to == domain.StatusUp {
		return s.opts.NotifyOnFirstUp
	}
	return true
}

// storeCtx bounds one storage call so a hung backend cannot stall the monitor's cycles.
func (s *Scheduler) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}
