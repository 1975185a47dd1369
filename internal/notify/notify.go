package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/metrics"
)

// DefaultDispatchTimeout bounds a single channel delivery.
const DefaultDispatchTimeout = 10 * time.Second

var ErrNoTransport = errors.New("no transport for channel type")

// Payload is the status-change event every transport renders.
type Payload struct {
	MonitorID      domain.MonitorID `json:"monitor_id"`
	MonitorName    string           `json:"monitor_name"`
	Target         string           `json:"target"`
	Status         domain.Status    `json:"status"`
	PreviousStatus domain.Status    `json:"previous_status"`
	Timestamp      time.Time        `json:"timestamp"`
	Latency        time.Duration    `json:"latency_ns"`
	Uptime         float64          `json:"uptime"`
	Reason         string           `json:"reason,omitempty"`
}

func (p Payload) Title() string {
	switch p.Status {
	case domain.StatusDown:
		return fmt.Sprintf("DOWN: %s", p.MonitorName)
	case domain.StatusUp:
		return fmt.Sprintf("UP: %s", p.MonitorName)
	}
	return fmt.Sprintf("%s: %s", strings.ToUpper(string(p.Status)), p.MonitorName)
}

func (p Payload) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n", p.Target)
	fmt.Fprintf(&b, "Status: %s -> %s\n", p.PreviousStatus, p.Status)
	if p.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", p.Reason)
	}
	fmt.Fprintf(&b, "Latency: %s\n", p.Latency.Round(time.Millisecond))
	fmt.Fprintf(&b, "Uptime: %.2f%%\n", p.Uptime)
	fmt.Fprintf(&b, "At: %s", p.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

// Transport delivers one payload over one channel. It must honor ctx.
type Transport interface {
	Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, ch domain.NotificationChannel, p Payload) error

func (f TransportFunc) Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error {
	return f(ctx, ch, p)
}

// Dispatcher fans a payload out to channels without blocking the caller.
type Dispatcher struct {
	log     *zap.Logger
	metrics *metrics.Collector
	timeout time.Duration

	mu         sync.RWMutex
	transports map[domain.ChannelType]Transport

	wg sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, m *metrics.Collector, timeout time.Duration) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{
		log:        log,
		metrics:    m,
		timeout:    timeout,
		transports: make(map[domain.ChannelType]Transport),
	}
}

// Defaults registers every built-in transport.
func (d *Dispatcher) Defaults() *Dispatcher {
	d.Register(domain.ChannelSlack, NewSlack())
	d.Register(domain.ChannelDiscord, NewDiscord())
	d.Register(domain.ChannelWebhook, NewWebhook())
	d.Register(domain.ChannelSMS, NewSMS())
	d.Register(domain.ChannelEmail, NewEmail())
	d.Register(domain.ChannelTelegram, NewTelegram())
	return d
}

func (d *Dispatcher) Register(t domain.ChannelType, tr Transport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transports[t] = tr
}

// Notify returns immediately. Each enabled channel is delivered in its own goroutine
// under the dispatch timeout; failures are logged and never retried.
func (d *Dispatcher) Notify(channels []domain.NotificationChannel, p Payload) {
	for _, ch := range channels {
		if !ch.Enabled || !ch.AppliesTo(p.MonitorID) {
			continue
		}
		d.mu.RLock()
		tr := d.transports[ch.Type]
		d.mu.RUnlock()

		d.wg.Add(1)
		go func(ch domain.NotificationChannel) {
			defer d.wg.Done()
			d.deliver(tr, ch, p)
		}(ch)
	}
}

func (d *Dispatcher) deliver(tr Transport, ch domain.NotificationChannel, p Payload) {
	fields := []zap.Field{
		zap.String("monitor_id", string(p.MonitorID)),
		zap.String("channel_id", ch.ID),
		zap.String("channel_type", string(ch.Type)),
		zap.String("status", string(p.Status)),
	}
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transport panic: %v", rec)
			d.log.Error("notification_failed", append(fields, zap.Error(err))...)
			d.metrics.Notification(ch.Type, err)
		}
	}()

	if tr == nil {
		err = fmt.Errorf("%w %q", ErrNoTransport, ch.Type)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = tr.Send(ctx, ch, p)
		cancel()
	}
	d.metrics.Notification(ch.Type, err)
	if err != nil {
		d.log.Warn("notification_failed", append(fields, zap.Error(err))...)
		return
	}
	d.log.Info("notification_sent", fields...)
}

// Wait blocks until every dispatched delivery has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }
