package domain

import "time"

type MonitorID string

// MonitorType selects the probe variant used for a monitor.
type MonitorType string

const (
	TypeHTTP    MonitorType = "http"
	TypeHTTPS   MonitorType = "https"
	TypeTCP     MonitorType = "tcp"
	TypeDNS     MonitorType = "dns"
	TypeKeyword MonitorType = "keyword"
)

// Canonical folds aliases onto the type a prober is registered for.
func (t MonitorType) Canonical() MonitorType {
	if t == TypeHTTPS {
		return TypeHTTP
	}
	return t
}

type Status string

const (
	StatusPending     Status = "pending"
	StatusUp          Status = "up"
	StatusDown        Status = "down"
	StatusPaused      Status = "paused"
	StatusMaintenance Status = "maintenance"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUp, StatusDown, StatusPaused, StatusMaintenance:
		return true
	}
	return false
}

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// HTTPOptions apply to http, https and keyword monitors.
type HTTPOptions struct {
	Method              string            `json:"method,omitempty" yaml:"method"`
	Headers             map[string]string `json:"headers,omitempty" yaml:"headers"`
	Body                string            `json:"body,omitempty" yaml:"body"`
	AcceptedStatusCodes []int             `json:"accepted_status_codes,omitempty" yaml:"accepted_status_codes"`
	// MaxRedirects is the number of redirects followed; nil means DefaultMaxRedirects, 0 follows none.
	MaxRedirects *int `json:"max_redirects,omitempty" yaml:"max_redirects"`
	IgnoreTLS           bool              `json:"ignore_tls,omitempty" yaml:"ignore_tls"`
}

// RedirectLimit resolves MaxRedirects.
func (o HTTPOptions) RedirectLimit() int {
	if o.MaxRedirects == nil {
		return DefaultMaxRedirects
	}
	return *o.MaxRedirects
}

type DNSOptions struct {
	RecordType string `json:"record_type,omitempty" yaml:"record_type"`
	Resolver   string `json:"resolver,omitempty" yaml:"resolver"`
}

type Monitor struct {
	ID       MonitorID     `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Type     MonitorType   `json:"type" yaml:"type"`
	Target   string        `json:"target" yaml:"target"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
	Retries  int           `json:"retries" yaml:"retries"`
	HTTP     HTTPOptions   `json:"http" yaml:"http"`
	Keyword  string        `json:"keyword,omitempty" yaml:"keyword"`
	Port     int           `json:"port,omitempty" yaml:"port"`
	DNS      DNSOptions    `json:"dns" yaml:"dns"`
	Severity Severity      `json:"severity,omitempty" yaml:"severity"`
	Active   bool          `json:"active" yaml:"active"`

	// Fields below are owned by the scheduler once the monitor is scheduled.
	Status           Status        `json:"status" yaml:"status"`
	LastChecked      time.Time     `json:"last_checked" yaml:"-"`
	LastResponseTime time.Duration `json:"last_response_time" yaml:"-"`
	CheckCount       int64         `json:"check_count" yaml:"-"`
	FailCount        int64         `json:"fail_count" yaml:"-"`
	Uptime           float64       `json:"uptime" yaml:"-"`
}

// StatusUpdate is the metrics snapshot persisted after every completed cycle.
type StatusUpdate struct {
	Status       Status
	LastChecked  time.Time
	ResponseTime time.Duration
	CheckCount   int64
	FailCount    int64
	Uptime       float64
}

// Apply copies a persisted snapshot onto the monitor.
func (m *Monitor) Apply(u StatusUpdate) {
	m.Status = u.Status
	m.LastChecked = u.LastChecked
	m.LastResponseTime = u.ResponseTime
	m.CheckCount = u.CheckCount
	m.FailCount = u.FailCount
	m.Uptime = u.Uptime
}

type StatusHistoryEntry struct {
	ID           string        `json:"id"`
	MonitorID    MonitorID     `json:"monitor_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Status       Status        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	StatusCode   int           `json:"status_code,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
)

type IncidentUpdate struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Status    IncidentStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

type Incident struct {
	ID          string           `json:"id"`
	MonitorID   MonitorID        `json:"monitor_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      IncidentStatus   `json:"status"`
	Severity    Severity         `json:"severity"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	Duration    time.Duration    `json:"duration,omitempty"`
	Updates     []IncidentUpdate `json:"updates"`
}

func (i *Incident) Open() bool { return i.Status != IncidentResolved }

// IncidentPatch lists the changes applied by UpdateIncident. Nil fields are left untouched.
type IncidentPatch struct {
	Status        *IncidentStatus
	EndTime       *time.Time
	Duration      *time.Duration
	AppendUpdates []IncidentUpdate
}

// ApplyTo mutates inc in place. Stores without native patch support use it.
func (p IncidentPatch) ApplyTo(inc *Incident) {
	if p.Status != nil {
		inc.Status = *p.Status
	}
	if p.EndTime != nil {
		t := *p.EndTime
		inc.EndTime = &t
	}
	if p.Duration != nil {
		inc.Duration = *p.Duration
	}
	inc.Updates = append(inc.Updates, p.AppendUpdates...)
}

type ChannelType string

const (
	ChannelEmail    ChannelType = "email"
	ChannelSlack    ChannelType = "slack"
	ChannelDiscord  ChannelType = "discord"
	ChannelWebhook  ChannelType = "webhook"
	ChannelSMS      ChannelType = "sms"
	ChannelTelegram ChannelType = "telegram"
)

type NotificationChannel struct {
	ID      string         `json:"id" yaml:"id"`
	Type    ChannelType    `json:"type" yaml:"type"`
	Name    string         `json:"name" yaml:"name"`
	Config  map[string]any `json:"config" yaml:"config"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	// MonitorIDs restricts the channel to the listed monitors; empty means all monitors.
	MonitorIDs []MonitorID `json:"monitor_ids,omitempty" yaml:"monitors"`
}

// AppliesTo reports whether the channel should fire for the monitor.
func (c NotificationChannel) AppliesTo(id MonitorID) bool {
	if len(c.MonitorIDs) == 0 {
		return true
	}
	for _, m := range c.MonitorIDs {
		if m == id {
			return true
		}
	}
	return false
}

// ConfigString reads a string key from the opaque transport config.
func (c NotificationChannel) ConfigString(key string) string {
	if v, ok := c.Config[key].(string); ok {
		return v
	}
	return ""
}

type MaintenanceWindow struct {
	ID         string      `json:"id" yaml:"id"`
	Title      string      `json:"title" yaml:"title"`
	MonitorIDs []MonitorID `json:"monitor_ids" yaml:"monitors"`
	Start      time.Time   `json:"start" yaml:"start"`
	End        time.Time   `json:"end" yaml:"end"`
}

// Covers reports whether the window is in effect for id at t. An empty monitor list covers every monitor.
func (w MaintenanceWindow) Covers(id MonitorID, t time.Time) bool {
	if t.Before(w.Start) || !t.Before(w.End) {
		return false
	}
	if len(w.MonitorIDs) == 0 {
		return true
	}
	for _, m := range w.MonitorIDs {
		if m == id {
			return true
		}
	}
	return false
}
