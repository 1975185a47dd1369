package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	apimw "github.com/hamed0406/uptimemon/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/repo"
	"github.com/hamed0406/uptimemon/internal/scheduler"
)

// errMonitorExists refuses an add that would overwrite a stored monitor's counters.
var errMonitorExists = errors.New("monitor already exists")

type Server struct {
	Logger  *zap.Logger
	Sched   *scheduler.Scheduler
	Store   repo.Store
	Metrics *metrics.Collector
}

func NewServer(l *zap.Logger, sched *scheduler.Scheduler, store repo.Store, m *metrics.Collector) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Sched: sched, Store: store, Metrics: m}
}

// Router builds the control API. Empty origins allows every origin.
func (s *Server) Router(keys apimw.Keys, origins []string, publicRPM, publicBurst, adminRPM, adminBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/api/monitors", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(publicRPM, publicBurst))
			r.Use(apimw.RequireAny(keys))
			r.Get("/", s.handleList)
			r.Get("/{id}", s.handleGet)
			r.Get("/{id}/history", s.handleHistory)
			r.Get("/{id}/incidents", s.handleIncidents)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(adminRPM, adminBurst))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/", s.handleAdd)
			r.Delete("/{id}", s.handleRemove)
			r.Post("/{id}/pause", s.handlePause)
			r.Post("/{id}/resume", s.handleResume)
			r.Post("/{id}/check", s.handleCheck)
		})
	})
	return r
}

// MonitorView is the API shape of a scheduled monitor.
type MonitorView struct {
	ID          domain.MonitorID   `json:"id"`
	Name        string             `json:"name"`
	Type        domain.MonitorType `json:"type"`
	Target      string             `json:"target"`
	Interval    string             `json:"interval"`
	Timeout     string             `json:"timeout"`
	Retries     int                `json:"retries"`
	State       scheduler.State    `json:"state"`
	Status      domain.Status      `json:"status"`
	LastChecked *time.Time         `json:"last_checked,omitempty"`
	LatencyMS   float64            `json:"latency_ms"`
	CheckCount  int64              `json:"check_count"`
	FailCount   int64              `json:"fail_count"`
	Uptime      float64            `json:"uptime"`
}

func view(m domain.Monitor, st scheduler.State) MonitorView {
	v := MonitorView{
		ID:         m.ID,
		Name:       m.Name,
		Type:       m.Type,
		Target:     m.Target,
		Interval:   m.Interval.String(),
		Timeout:    m.Timeout.String(),
		Retries:    m.Retries,
		State:      st,
		Status:     m.Status,
		LatencyMS:  float64(m.LastResponseTime) / float64(time.Millisecond),
		CheckCount: m.CheckCount,
		FailCount:  m.FailCount,
		Uptime:     m.Uptime,
	}
	if !m.LastChecked.IsZero() {
		t := m.LastChecked
		v.LastChecked = &t
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps engine and store errors onto status codes.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidMonitor):
		status = http.StatusBadRequest
	case errors.Is(err, scheduler.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrAlreadyScheduled), errors.Is(err, errMonitorExists):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.Logger.Error("api_error", zap.String("path", r.URL.Path), zap.Error(err))
		apimw.WriteError(w, status, "internal error")
		return
	}
	apimw.WriteError(w, status, err.Error())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	snap := s.Sched.Snapshot()
	out := make([]MonitorView, 0, len(snap))
	for _, e := range snap {
		out = append(out, view(e.Monitor, e.State))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	m, err := s.Sched.Monitor(id)
	if errors.Is(err, scheduler.ErrNotFound) {
		// known to the store but not running, e.g. inactive
		stored, serr := s.Store.GetMonitor(r.Context(), id)
		if serr != nil {
			s.writeErr(w, r, serr)
			return
		}
		writeJSON(w, http.StatusOK, view(*stored, scheduler.Unscheduled))
		return
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	st, _ := s.Sched.State(id)
	writeJSON(w, http.StatusOK, view(m, st))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apimw.WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	hs, err := s.Store.ListStatusHistory(r.Context(), id, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hs)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	incs, err := s.Store.ListIncidents(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if incs == nil {
		incs = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, incs)
}

// addPayload is a Monitor with human durations ("60s") and active defaulting to true.
type addPayload struct {
	domain.Monitor
	Interval string `json:"interval"`
	Timeout  string `json:"timeout"`
	Active   *bool  `json:"active"`
}

func (p addPayload) toMonitor() (domain.Monitor, error) {
	m := p.Monitor
	var err error
	if m.Interval, err = parseDuration(p.Interval); err != nil {
		return m, fmt.Errorf("%w: interval: %v", domain.ErrInvalidMonitor, err)
	}
	if m.Timeout, err = parseDuration(p.Timeout); err != nil {
		return m, fmt.Errorf("%w: timeout: %v", domain.ErrInvalidMonitor, err)
	}
	m.Active = p.Active == nil || *p.Active
	// status and counters are owned by the scheduler
	m.Apply(domain.StatusUpdate{Status: domain.StatusPending})
	if m.Type.Canonical() == domain.TypeHTTP || m.Type == domain.TypeKeyword {
		m.Target = normalizeHTTPURL(m.Target)
	}
	return m.WithDefaults(), nil
}

// parseDuration accepts "90s" style strings or plain seconds.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		apimw.WriteError(w, http.StatusBadRequest, "bad payload")
		return
	}
	m, err := p.toMonitor()
	if err == nil {
		err = m.Validate()
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if _, err := s.Sched.Monitor(m.ID); err == nil {
		s.writeErr(w, r, fmt.Errorf("%w: %s", scheduler.ErrAlreadyScheduled, m.ID))
		return
	}
	switch _, err := s.Store.GetMonitor(r.Context(), m.ID); {
	case err == nil:
		s.writeErr(w, r, fmt.Errorf("%w: %s", errMonitorExists, m.ID))
		return
	case !errors.Is(err, repo.ErrNotFound):
		s.writeErr(w, r, err)
		return
	}

	if err := s.Store.UpsertMonitor(r.Context(), m); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if m.Active {
		if err := s.Sched.Add(m); err != nil && !errors.Is(err, scheduler.ErrAlreadyScheduled) {
			s.writeErr(w, r, err)
			return
		}
	}
	st, _ := s.Sched.State(m.ID)
	s.Logger.Info("monitor_added",
		zap.String("monitor_id", string(m.ID)),
		zap.String("type", string(m.Type)),
		zap.String("target", m.Target),
	)
	writeJSON(w, http.StatusCreated, view(m, st))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	schedErr := s.Sched.Remove(id)
	storeErr := s.Store.DeleteMonitor(r.Context(), id)
	if errors.Is(schedErr, scheduler.ErrNotFound) && errors.Is(storeErr, repo.ErrNotFound) {
		s.writeErr(w, r, storeErr)
		return
	}
	if storeErr != nil && !errors.Is(storeErr, repo.ErrNotFound) {
		s.writeErr(w, r, storeErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.Sched.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.Sched.Resume)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(domain.MonitorID) error) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	if err := op(id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	m, err := s.Sched.Monitor(id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	st, _ := s.Sched.State(id)
	writeJSON(w, http.StatusOK, view(m, st))
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	out, err := s.Sched.CheckNow(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// normalizeHTTPURL lowercases the host, drops default ports and a bare trailing slash.
// Anything unparsable is returned unchanged for Validate to reject.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
