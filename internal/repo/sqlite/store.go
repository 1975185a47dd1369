// Package sqlite is a single-file repo.Store backed by modernc.org/sqlite (no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// New opens path (or ":memory:") and applies the schema.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Timestamps are stored as unix nanoseconds so ORDER BY is chronological.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id               TEXT PRIMARY KEY,
	config           TEXT NOT NULL,
	active           INTEGER NOT NULL,
	status           TEXT NOT NULL,
	last_checked     INTEGER NOT NULL DEFAULT 0,
	response_time_ns INTEGER NOT NULL DEFAULT 0,
	check_count      INTEGER NOT NULL DEFAULT 0,
	fail_count       INTEGER NOT NULL DEFAULT 0,
	uptime           REAL NOT NULL DEFAULT 100
);

CREATE TABLE IF NOT EXISTS status_history (
	id               TEXT PRIMARY KEY,
	monitor_id       TEXT NOT NULL,
	checked_at       INTEGER NOT NULL,
	status           TEXT NOT NULL,
	response_time_ns INTEGER NOT NULL,
	status_code      INTEGER,
	error            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_monitor_time ON status_history (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS incidents (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	monitor_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	severity    TEXT NOT NULL,
	start_time  INTEGER NOT NULL,
	end_time    INTEGER,
	duration_ns INTEGER NOT NULL DEFAULT 0,
	updates     TEXT NOT NULL DEFAULT '[]'
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_incidents_open_per_monitor ON incidents (monitor_id) WHERE status <> 'resolved';

CREATE TABLE IF NOT EXISTS channels (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	config      TEXT NOT NULL DEFAULT '{}',
	enabled     INTEGER NOT NULL,
	monitor_ids TEXT NOT NULL DEFAULT '[]'
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- monitors ----

type scanner interface{ Scan(dest ...any) error }

const monitorColumns = `config, status, last_checked, response_time_ns, check_count, fail_count, uptime`

func scanMonitor(row scanner) (*domain.Monitor, error) {
	var (
		cfg         string
		status      string
		lastChecked int64
		respNS      int64
		check, fail int64
		uptime      float64
		m           domain.Monitor
	)
	if err := row.Scan(&cfg, &status, &lastChecked, &respNS, &check, &fail, &uptime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &m); err != nil {
		return nil, fmt.Errorf("decode monitor config: %w", err)
	}
	m.Apply(domain.StatusUpdate{
		Status:       domain.Status(status),
		LastChecked:  fromUnixNano(lastChecked),
		ResponseTime: time.Duration(respNS),
		CheckCount:   check,
		FailCount:    fail,
		Uptime:       uptime,
	})
	return &m, nil
}

func (s *Store) ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()
	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMonitorStatus(ctx context.Context, id domain.MonitorID, u domain.StatusUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET status=?, last_checked=?, response_time_ns=?, check_count=?, fail_count=?, uptime=? WHERE id=?`,
		string(u.Status), unixNano(u.LastChecked), int64(u.ResponseTime), u.CheckCount, u.FailCount, u.Uptime, string(id))
	if err != nil {
		return fmt.Errorf("update monitor status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertMonitor(ctx context.Context, m domain.Monitor) error {
	cfg, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode monitor: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitors (id, config, active, status, last_checked, response_time_ns, check_count, fail_count, uptime)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   config=excluded.config, active=excluded.active, status=excluded.status,
		   last_checked=excluded.last_checked, response_time_ns=excluded.response_time_ns,
		   check_count=excluded.check_count, fail_count=excluded.fail_count, uptime=excluded.uptime`,
		string(m.ID), string(cfg), m.Active, string(m.Status), unixNano(m.LastChecked), int64(m.LastResponseTime),
		m.CheckCount, m.FailCount, m.Uptime)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m, err := scanMonitor(s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id=?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id=?`, string(id))
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- history ----

func (s *Store) AppendStatusHistory(ctx context.Context, e *domain.StatusHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var code sql.NullInt64
	if e.StatusCode != 0 {
		code = sql.NullInt64{Int64: int64(e.StatusCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_history (id, monitor_id, checked_at, status, response_time_ns, status_code, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.MonitorID), e.Timestamp.UnixNano(), string(e.Status), int64(e.ResponseTime), code, e.Error)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *Store) ListStatusHistory(ctx context.Context, id domain.MonitorID, limit int) ([]domain.StatusHistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, checked_at, status, response_time_ns, status_code, error
		   FROM status_history
		  WHERE monitor_id=?
		  ORDER BY checked_at DESC
		  LIMIT ?`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var out []domain.StatusHistoryEntry
	for rows.Next() {
		var (
			e      domain.StatusHistoryEntry
			at     int64
			status string
			respNS int64
			code   sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &at, &status, &respNS, &code, &e.Error); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.MonitorID = id
		e.Timestamp = fromUnixNano(at)
		e.Status = domain.Status(status)
		e.ResponseTime = time.Duration(respNS)
		if code.Valid {
			e.StatusCode = int(code.Int64)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- incidents ----

const incidentColumns = `id, monitor_id, title, description, status, severity, start_time, end_time, duration_ns, updates`

func scanIncident(row scanner) (*domain.Incident, error) {
	var (
		inc            domain.Incident
		monID, st, sev string
		start          int64
		end            sql.NullInt64
		durNS          int64
		updates        string
	)
	if err := row.Scan(&inc.ID, &monID, &inc.Title, &inc.Description, &st, &sev, &start, &end, &durNS, &updates); err != nil {
		return nil, err
	}
	inc.MonitorID = domain.MonitorID(monID)
	inc.Status = domain.IncidentStatus(st)
	inc.Severity = domain.Severity(sev)
	inc.StartTime = fromUnixNano(start)
	if end.Valid {
		t := fromUnixNano(end.Int64)
		inc.EndTime = &t
	}
	inc.Duration = time.Duration(durNS)
	if err := json.Unmarshal([]byte(updates), &inc.Updates); err != nil {
		return nil, fmt.Errorf("decode incident updates: %w", err)
	}
	return &inc, nil
}

func (s *Store) FindOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	inc, err := scanIncident(s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id=? AND status <> 'resolved'`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open incident: %w", err)
	}
	return inc, nil
}

func (s *Store) CreateIncident(ctx context.Context, inc *domain.Incident) (string, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	updates := inc.Updates
	if updates == nil {
		updates = []domain.IncidentUpdate{}
	}
	body, err := json.Marshal(updates)
	if err != nil {
		return "", fmt.Errorf("encode incident updates: %w", err)
	}
	var end sql.NullInt64
	if inc.EndTime != nil {
		end = sql.NullInt64{Int64: inc.EndTime.UnixNano(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO incidents (id, monitor_id, title, description, status, severity, start_time, end_time, duration_ns, updates)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, string(inc.MonitorID), inc.Title, inc.Description, string(inc.Status), string(inc.Severity),
		inc.StartTime.UnixNano(), end, int64(inc.Duration), string(body))
	if isUniqueViolation(err) {
		return "", repo.ErrIncidentOpen
	}
	if err != nil {
		return "", fmt.Errorf("insert incident: %w", err)
	}
	return inc.ID, nil
}

// UpdateIncident reads, patches and writes back inside one transaction.
func (s *Store) UpdateIncident(ctx context.Context, id string, p domain.IncidentPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	inc, err := scanIncident(tx.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load incident: %w", err)
	}
	p.ApplyTo(inc)

	body, err := json.Marshal(inc.Updates)
	if err != nil {
		return fmt.Errorf("encode incident updates: %w", err)
	}
	var end sql.NullInt64
	if inc.EndTime != nil {
		end = sql.NullInt64{Int64: inc.EndTime.UnixNano(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE incidents SET status=?, end_time=?, duration_ns=?, updates=? WHERE id=?`,
		string(inc.Status), end, int64(inc.Duration), string(body), id); err != nil {
		if isUniqueViolation(err) {
			return repo.ErrIncidentOpen
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id=? ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

// ---- channels ----

func (s *Store) UpsertChannel(ctx context.Context, c domain.NotificationChannel) error {
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("encode channel config: %w", err)
	}
	ids := c.MonitorIDs
	if ids == nil {
		ids = []domain.MonitorID{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode channel monitors: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO channels (id, type, name, config, enabled, monitor_ids)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   type=excluded.type, name=excluded.name, config=excluded.config,
		   enabled=excluded.enabled, monitor_ids=excluded.monitor_ids`,
		c.ID, string(c.Type), c.Name, string(cfg), c.Enabled, string(idsJSON))
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

// ListEnabledChannels filters the monitor list in Go; channel counts are small.
func (s *Store) ListEnabledChannels(ctx context.Context, id domain.MonitorID) ([]domain.NotificationChannel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name, config, enabled, monitor_ids FROM channels WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	var out []domain.NotificationChannel
	for rows.Next() {
		var (
			c             domain.NotificationChannel
			typ, cfg, ids string
		)
		if err := rows.Scan(&c.ID, &typ, &c.Name, &cfg, &c.Enabled, &ids); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.Type = domain.ChannelType(typ)
		if err := json.Unmarshal([]byte(cfg), &c.Config); err != nil {
			return nil, fmt.Errorf("decode channel config: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &c.MonitorIDs); err != nil {
			return nil, fmt.Errorf("decode channel monitors: %w", err)
		}
		if c.AppliesTo(id) {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}
