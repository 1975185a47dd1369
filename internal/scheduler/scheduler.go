// Package scheduler owns one timer-driven task per monitor and runs their check cycles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/events"
	"github.com/hamed0406/uptimemon/internal/incident"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/notify"
	"github.com/hamed0406/uptimemon/internal/probe"
	"github.com/hamed0406/uptimemon/internal/repo"
)

var (
	ErrNotFound         = errors.New("monitor is not scheduled")
	ErrAlreadyScheduled = errors.New("monitor is already scheduled")
	ErrStopped          = errors.New("scheduler is stopped")
)

type State string

const (
	Unscheduled State = "unscheduled"
	Scheduled   State = "scheduled"
	Paused      State = "paused"
)

// Deps are the collaborators a Scheduler is built from. Store and Prober are required.
type Deps struct {
	Store     repo.Gateway
	Prober    probe.Prober
	Incidents *incident.Manager
	Notifier  *notify.Dispatcher
	Events    events.Sink
	Metrics   *metrics.Collector
	Logger    *zap.Logger
	Calendar  Calendar
}

type Options struct {
	// RetryBackoff is the pause between failed attempts inside one cycle.
	RetryBackoff time.Duration
	Now          func() time.Time
	// NotifyOnFirstUp sends a notification when a pending monitor is first seen up.
	NotifyOnFirstUp bool
	// StoreTimeout bounds each storage, incident and event call made by a cycle.
	StoreTimeout time.Duration
}

// DefaultStoreTimeout is used when Options.StoreTimeout is not set.
const DefaultStoreTimeout = 5 * time.Second

type task struct {
	// run serializes cycles of the same monitor.
	run sync.Mutex

	mu         sync.Mutex
	monitor    domain.Monitor
	state      State
	pausedFrom domain.Status
	external   bool // held because the store says paused or maintenance
	removed    bool
	gen        uint64
	cancel     context.CancelFunc
}

func (t *task) snapshot() (domain.Monitor, uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monitor, t.gen, t.removed
}

type Scheduler struct {
	store     repo.Gateway
	retry     *probe.RetryChecker
	incidents *incident.Manager
	notifier  *notify.Dispatcher
	events    events.Sink
	metrics   *metrics.Collector
	log       *zap.Logger
	calendar  Calendar
	opts      Options

	// runCtx is handed to cycles; it is only cancelled when Shutdown gives up waiting.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	tasks   map[domain.MonitorID]*task
	stopped bool
	wg      sync.WaitGroup
}

func New(d Deps, o Options) *Scheduler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Calendar == nil {
		d.Calendar = NewWindows()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     d.Store,
		retry:     &probe.RetryChecker{Inner: d.Prober, Backoff: o.RetryBackoff},
		incidents: d.Incidents,
		notifier:  d.Notifier,
		events:    d.Events,
		metrics:   d.Metrics,
		log:       d.Logger,
		calendar:  d.Calendar,
		opts:      o,
		runCtx:    ctx,
		runCancel: cancel,
		tasks:     make(map[domain.MonitorID]*task),
	}
}

// supporter is implemented by probers that can tell which monitor types they handle.
type supporter interface {
	Supports(domain.MonitorType) bool
}

func (s *Scheduler) prepare(m domain.Monitor) (domain.Monitor, error) {
	m = m.WithDefaults()
	if err := m.Validate(); err != nil {
		return m, err
	}
	if sp, ok := s.retry.Inner.(supporter); ok && !sp.Supports(m.Type) {
		return m, fmt.Errorf("%w: no prober for type %q", domain.ErrInvalidMonitor, m.Type)
	}
	return m, nil
}

// Add schedules m: one immediate check, then one every m.Interval.
// A monitor persisted as paused or maintenance is held without a timer.
func (s *Scheduler) Add(m domain.Monitor) error {
	m, err := s.prepare(m)
	if err != nil {
		return err
	}
	if !m.Active {
		return fmt.Errorf("%w: monitor %s is not active", domain.ErrInvalidMonitor, m.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.tasks[m.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyScheduled, m.ID)
	}
	t := &task{monitor: m, state: Scheduled}
	s.tasks[m.ID] = t
	s.metrics.SetScheduled(len(s.tasks))

	if held(m.Status) {
		t.state = Paused
		t.external = true
		t.pausedFrom = domain.StatusPending
		s.log.Info("monitor_held", zap.String("monitor_id", string(m.ID)), zap.String("status", string(m.Status)))
		return nil
	}
	s.startLocked(t, true)
	s.log.Info("monitor_scheduled",
		zap.String("monitor_id", string(m.ID)),
		zap.String("type", string(m.Type)),
		zap.Duration("interval", m.Interval),
	)
	return nil
}

func held(st domain.Status) bool {
	return st == domain.StatusPaused || st == domain.StatusMaintenance
}

// startLocked arms the task's timer goroutine. Caller holds s.mu.
func (s *Scheduler) startLocked(t *task, immediate bool) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = cancel
	interval := t.monitor.Interval
	t.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, t, interval, immediate)
}

func (s *Scheduler) loop(ctx context.Context, t *task, interval time.Duration, immediate bool) {
	defer s.wg.Done()
	if immediate {
		s.cycle(s.runCtx, t)
	}
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			// a tick may race with cancellation
			if ctx.Err() != nil {
				return
			}
			s.cycle(s.runCtx, t)
		}
	}
}

func (s *Scheduler) get(id domain.MonitorID) (*task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// Remove cancels the monitor's timer. An in-flight cycle finishes without side effects.
func (s *Scheduler) Remove(id domain.MonitorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(id)
	if err != nil {
		return err
	}
	delete(s.tasks, id)
	t.mu.Lock()
	t.removed = true
	t.gen++
	t.state = Unscheduled
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()

	s.metrics.Forget(id)
	s.metrics.SetScheduled(len(s.tasks))
	s.log.Info("monitor_removed", zap.String("monitor_id", string(id)))
	return nil
}

// Pause stops future cycles. Configuration and counters are kept in memory only.
func (s *Scheduler) Pause(id domain.MonitorID) error {
	return s.hold(id, domain.StatusPaused, false)
}

func (s *Scheduler) hold(id domain.MonitorID, st domain.Status, external bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Paused {
		if t.external && !external {
			// an explicit pause outlives the store-driven hold
			t.external = false
		}
		if t.external {
			t.monitor.Status = st
		}
		return nil
	}
	t.pausedFrom = t.monitor.Status
	t.monitor.Status = st
	t.state = Paused
	t.external = external
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	s.log.Info("monitor_paused", zap.String("monitor_id", string(id)), zap.String("status", string(st)))
	return nil
}

// Resume re-arms the timer and runs an immediate check, exactly like Add.
func (s *Scheduler) Resume(id domain.MonitorID) error {
	return s.release(id, false)
}

func (s *Scheduler) release(id domain.MonitorID, external bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.state != Paused || (external && !t.external) {
		t.mu.Unlock()
		return nil
	}
	prev := t.pausedFrom
	if prev == "" || held(prev) {
		prev = domain.StatusPending
	}
	t.monitor.Status = prev
	t.state = Scheduled
	t.external = false
	t.gen++
	t.mu.Unlock()

	s.startLocked(t, true)
	s.log.Info("monitor_resumed", zap.String("monitor_id", string(id)))
	return nil
}

// Update replaces the monitor's configuration. Status and counters stay as they are in memory.
// A changed interval re-arms the timer without an extra immediate check.
func (s *Scheduler) Update(m domain.Monitor) error {
	m, err := s.prepare(m)
	if err != nil {
		return err
	}
	if !m.Active {
		return s.Remove(m.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	t, err := s.get(m.ID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	cur := t.monitor
	m.Status = cur.Status
	m.LastChecked = cur.LastChecked
	m.LastResponseTime = cur.LastResponseTime
	m.CheckCount = cur.CheckCount
	m.FailCount = cur.FailCount
	m.Uptime = cur.Uptime
	t.monitor = m
	rearm := t.state == Scheduled && cur.Interval != m.Interval
	t.mu.Unlock()

	if rearm {
		s.startLocked(t, false)
	}
	s.log.Info("monitor_updated", zap.String("monitor_id", string(m.ID)), zap.Bool("rearmed", rearm))
	return nil
}

// CheckNow runs one cycle synchronously. It waits for any cycle of the same monitor in flight.
// Cancelling ctx does not abort the cycle; it runs to completion unless the scheduler shuts down.
func (s *Scheduler) CheckNow(ctx context.Context, id domain.MonitorID) (Outcome, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Outcome{}, ErrStopped
	}
	t, err := s.get(id)
	if err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	// A caller going away must not cut the cycle short; only Shutdown does.
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(s.runCtx, cancel)
	defer stop()
	return s.cycle(cctx, t), nil
}

func (s *Scheduler) State(id domain.MonitorID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Unscheduled, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, nil
}

// Entry is one scheduled monitor as seen by Snapshot.
type Entry struct {
	Monitor domain.Monitor `json:"monitor"`
	State   State          `json:"state"`
}

// Snapshot lists every scheduled monitor sorted by id.
func (s *Scheduler) Snapshot() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		out = append(out, Entry{Monitor: t.monitor, State: t.state})
		t.mu.Unlock()
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Monitor.ID < out[j].Monitor.ID })
	return out
}

// Monitor returns the in-memory view of one scheduled monitor.
func (s *Scheduler) Monitor(id domain.MonitorID) (domain.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(id)
	if err != nil {
		return domain.Monitor{}, err
	}
	m, _, _ := t.snapshot()
	return m, nil
}

// Shutdown stops every timer and waits for in-flight cycles and pending notifications.
// When ctx expires first, running probes are cancelled and ctx.Err() is returned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, t := range s.tasks {
		t.mu.Lock()
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		t.mu.Unlock()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		if s.notifier != nil {
			s.notifier.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		s.runCancel()
		s.log.Info("scheduler_stopped")
		return nil
	case <-ctx.Done():
		s.runCancel()
		s.log.Warn("scheduler_shutdown_timeout", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
