package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Collector owns the engine's Prometheus series. A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	checkDuration *prometheus.HistogramVec
	checksTotal   *prometheus.CounterVec
	monitorUp     *prometheus.GaugeVec
	uptime        *prometheus.GaugeVec
	incidents     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	certExpiry    *prometheus.GaugeVec
	scheduled     prometheus.Gauge
}

// New registers every series on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWith(reg, reg)
}

func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		gatherer: g,
		checkDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uptimemon_check_duration_seconds",
				Help:    "Wall-clock duration of complete check cycles, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"monitor", "type", "result"},
		),
		checksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimemon_checks_total",
				Help: "Completed check cycles",
			},
			[]string{"monitor", "type", "result"},
		),
		monitorUp: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptimemon_monitor_up",
				Help: "1 when the monitor's last cycle was up, 0 when down",
			},
			[]string{"monitor"},
		),
		uptime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptimemon_monitor_uptime_percent",
				Help: "Cumulative uptime percentage",
			},
			[]string{"monitor"},
		),
		incidents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimemon_incidents_opened_total",
				Help: "Incidents opened",
			},
			[]string{"monitor"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimemon_notifications_total",
				Help: "Notification dispatch attempts by channel type and result",
			},
			[]string{"type", "result"},
		),
		storageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimemon_storage_errors_total",
				Help: "Failed storage gateway operations",
			},
			[]string{"op"},
		),
		certExpiry: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptimemon_cert_expiry_seconds",
				Help: "Seconds until the monitored TLS certificate expires",
			},
			[]string{"monitor"},
		),
		scheduled: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "uptimemon_scheduled_monitors",
				Help: "Monitors currently owned by the scheduler",
			},
		),
	}
}

func result(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func (c *Collector) ObserveCycle(m domain.Monitor, d time.Duration, up bool, uptime float64) {
	if c == nil {
		return
	}
	id := string(m.ID)
	c.checkDuration.WithLabelValues(id, string(m.Type), result(up)).Observe(d.Seconds())
	c.checksTotal.WithLabelValues(id, string(m.Type), result(up)).Inc()
	v := 0.0
	if up {
		v = 1
	}
	c.monitorUp.WithLabelValues(id).Set(v)
	c.uptime.WithLabelValues(id).Set(uptime)
}

func (c *Collector) CertExpiry(id domain.MonitorID, notAfter, now time.Time) {
	if c == nil || notAfter.IsZero() {
		return
	}
	c.certExpiry.WithLabelValues(string(id)).Set(notAfter.Sub(now).Seconds())
}

func (c *Collector) IncidentOpened(id domain.MonitorID) {
	if c == nil {
		return
	}
	c.incidents.WithLabelValues(string(id)).Inc()
}

func (c *Collector) Notification(t domain.ChannelType, err error) {
	if c == nil {
		return
	}
	res := "ok"
	if err != nil {
		res = "error"
	}
	c.notifications.WithLabelValues(string(t), res).Inc()
}

func (c *Collector) StorageError(op string) {
	if c == nil {
		return
	}
	c.storageErrors.WithLabelValues(op).Inc()
}

func (c *Collector) SetScheduled(n int) {
	if c == nil {
		return
	}
	c.scheduled.Set(float64(n))
}

// Forget drops per-monitor gauges once a monitor is unscheduled.
func (c *Collector) Forget(id domain.MonitorID) {
	if c == nil {
		return
	}
	c.monitorUp.DeleteLabelValues(string(id))
	c.uptime.DeleteLabelValues(string(id))
	c.certExpiry.DeleteLabelValues(string(id))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
