package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
	apimw "github.com/hamed0406/uptimemon/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemon/internal/incident"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/probe"
	"github.com/hamed0406/uptimemon/internal/repo/memory"
	"github.com/hamed0406/uptimemon/internal/scheduler"
)

// ---- test helpers ----

type env struct {
	ts    *httptest.Server
	store *memory.Store
	sched *scheduler.Scheduler
}

func setup(t *testing.T, up bool) *env {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	// fake prober returns the same result so tests are deterministic
	p := probe.ProberFunc(func(ctx context.Context, m domain.Monitor) probe.Result {
		if up {
			return probe.Result{Success: true, StatusCode: 200, Latency: 12 * time.Millisecond, Message: "200 OK"}
		}
		return probe.Result{StatusCode: 503, Latency: 12 * time.Millisecond, Message: "unexpected status 503"}
	})
	m := metrics.New()
	sched := scheduler.New(scheduler.Deps{
		Store:     store,
		Prober:    p,
		Incidents: incident.NewManager(store, log, m),
		Metrics:   m,
		Logger:    log,
	}, scheduler.Options{})
	t.Cleanup(func() { _ = sched.Shutdown(context.Background()) })

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	h := NewServer(log, sched, store, m).Router(keys, nil, 10_000, 10_000, 10_000, 10_000)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &env{ts: ts, store: store, sched: sched}
}

func (e *env) do(t *testing.T, method, path, key string, body string) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

const apiMonitor = `{"id":"api","name":"API","type":"https","target":"https://API.example.com:443/","interval":"60s","retries":1}`

// ---- tests ----

func TestAddMonitor_OK_Duplicate_Invalid(t *testing.T) {
	e := setup(t, true)

	resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", apiMonitor)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	v := decode[MonitorView](t, resp)
	if v.Target != "https://api.example.com" || v.Interval != "1m0s" || v.Timeout != "10s" || v.State != scheduler.Scheduled {
		t.Fatalf("unexpected view %+v", v)
	}
	if stored, err := e.store.GetMonitor(context.Background(), "api"); err != nil || !stored.Active {
		t.Fatalf("monitor not persisted: %+v err=%v", stored, err)
	}

	// duplicate should be 409
	if resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", apiMonitor); resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", resp.StatusCode)
	}

	// invalid target should be 400
	bad := `{"id":"bad","name":"Bad","type":"http","target":"ftp://bad","interval":"60s"}`
	if resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", bad); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid target, got %d", resp.StatusCode)
	}
	// interval below the floor
	fast := `{"id":"fast","name":"Fast","type":"tcp","target":"db:5432","interval":"1s"}`
	if resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", fast); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on short interval, got %d", resp.StatusCode)
	}
}

func TestAddMonitor_NeedsAdminKey(t *testing.T) {
	e := setup(t, true)
	if resp := e.do(t, http.MethodPost, "/api/monitors", "pub_test", apiMonitor); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403 for public key, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodGet, "/api/monitors", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without key, got %d", resp.StatusCode)
	}
}

func TestListCheckHistoryIncidents(t *testing.T) {
	e := setup(t, false)
	e.do(t, http.MethodPost, "/api/monitors", "adm_test", apiMonitor)

	resp := e.do(t, http.MethodPost, "/api/monitors/api/check", "adm_test", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 check, got %d", resp.StatusCode)
	}
	out := decode[scheduler.Outcome](t, resp)
	if out.Status != domain.StatusDown || out.Attempts != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	list := decode[[]MonitorView](t, e.do(t, http.MethodGet, "/api/monitors", "pub_test", ""))
	if len(list) != 1 || list[0].ID != "api" || list[0].Status != domain.StatusDown || list[0].CheckCount < 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	hist := decode[[]domain.StatusHistoryEntry](t, e.do(t, http.MethodGet, "/api/monitors/api/history?limit=1", "pub_test", ""))
	if len(hist) != 1 || hist[0].Status != domain.StatusDown || hist[0].StatusCode != 503 {
		t.Fatalf("unexpected history: %+v", hist)
	}
	if resp := e.do(t, http.MethodGet, "/api/monitors/api/history?limit=x", "pub_test", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on bad limit, got %d", resp.StatusCode)
	}

	incs := decode[[]domain.Incident](t, e.do(t, http.MethodGet, "/api/monitors/api/incidents", "pub_test", ""))
	if len(incs) != 1 || !incs[0].Open() {
		t.Fatalf("want one open incident, got %+v", incs)
	}
}

func TestPauseResumeRemove(t *testing.T) {
	e := setup(t, true)
	e.do(t, http.MethodPost, "/api/monitors", "adm_test", apiMonitor)

	v := decode[MonitorView](t, e.do(t, http.MethodPost, "/api/monitors/api/pause", "adm_test", ""))
	if v.State != scheduler.Paused || v.Status != domain.StatusPaused {
		t.Fatalf("pause: %+v", v)
	}
	v = decode[MonitorView](t, e.do(t, http.MethodPost, "/api/monitors/api/resume", "adm_test", ""))
	if v.State != scheduler.Scheduled {
		t.Fatalf("resume: %+v", v)
	}

	if resp := e.do(t, http.MethodDelete, "/api/monitors/api", "adm_test", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("want 204, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodDelete, "/api/monitors/api", "adm_test", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 on second delete, got %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodPost, "/api/monitors/api/pause", "adm_test", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 pausing removed monitor, got %d", resp.StatusCode)
	}
}

func TestGetInactiveMonitorFromStore(t *testing.T) {
	e := setup(t, true)
	body := `{"id":"off","name":"Off","type":"tcp","target":"db:5432","interval":"30s","active":false}`
	if resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	v := decode[MonitorView](t, e.do(t, http.MethodGet, "/api/monitors/off", "pub_test", ""))
	if v.State != scheduler.Unscheduled || v.Type != domain.TypeTCP {
		t.Fatalf("unexpected view %+v", v)
	}
	if resp := e.do(t, http.MethodGet, "/api/monitors/missing", "pub_test", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestAddMonitor_StoredInactiveKeepsCounters(t *testing.T) {
	e := setup(t, true)
	stored := domain.Monitor{
		ID: "off", Name: "Off", Type: domain.TypeTCP, Target: "db:5432",
		Interval: 30 * time.Second, Status: domain.StatusDown,
		CheckCount: 40, FailCount: 4, Uptime: 90,
	}.WithDefaults()
	if err := e.store.UpsertMonitor(context.Background(), stored); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}

	body := `{"id":"off","name":"Off again","type":"tcp","target":"db:5432","interval":"30s"}`
	if resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", body); resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d", resp.StatusCode)
	}
	cur, err := e.store.GetMonitor(context.Background(), "off")
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if cur.CheckCount != 40 || cur.FailCount != 4 || cur.Uptime != 90 || cur.Name != "Off" {
		t.Fatalf("stored monitor was overwritten: %+v", cur)
	}
	if st, _ := e.sched.State("off"); st != scheduler.Unscheduled {
		t.Fatalf("refused add must not schedule, got %s", st)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	e := setup(t, true)
	if resp := e.do(t, http.MethodGet, "/healthz", "", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	e.do(t, http.MethodPost, "/api/monitors", "adm_test", apiMonitor)
	e.do(t, http.MethodPost, "/api/monitors/api/check", "adm_test", "")

	resp := e.do(t, http.MethodGet, "/metrics", "", "")
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `uptimemon_checks_total{monitor="api"`) {
		t.Fatalf("metrics missing check counter:\n%s", buf.String())
	}
}
