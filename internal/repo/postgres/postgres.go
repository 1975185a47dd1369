package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

const monitorColumns = `config, status, last_checked, response_time_ms, check_count, fail_count, uptime`

func scanMonitor(row pgx.Row) (*domain.Monitor, error) {
	var (
		cfg         []byte
		status      string
		lastChecked *time.Time
		respMS      float64
		m           domain.Monitor
	)
	if err := row.Scan(&cfg, &status, &lastChecked, &respMS, &m.CheckCount, &m.FailCount, &m.Uptime); err != nil {
		return nil, err
	}
	counters := m
	if err := json.Unmarshal(cfg, &m); err != nil {
		return nil, fmt.Errorf("decode monitor config: %w", err)
	}
	m.Status = domain.Status(status)
	m.LastResponseTime = fromMS(respMS)
	m.CheckCount, m.FailCount, m.Uptime = counters.CheckCount, counters.FailCount, counters.Uptime
	m.LastChecked = time.Time{}
	if lastChecked != nil {
		m.LastChecked = lastChecked.UTC()
	}
	return &m, nil
}

// ---- MonitorStore ----

func (s *Store) ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+monitorColumns+`
		   FROM monitors
		  WHERE active
		  ORDER BY id`)
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
	var lastChecked *time.Time
	if !u.LastChecked.IsZero() {
		lastChecked = &u.LastChecked
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors
		    SET status=$2, last_checked=$3, response_time_ms=$4,
		        check_count=$5, fail_count=$6, uptime=$7, updated_at=now()
		  WHERE id=$1`,
		string(id), string(u.Status), lastChecked, toMS(u.ResponseTime), u.CheckCount, u.FailCount, u.Uptime)
	if err != nil {
		return fmt.Errorf("update monitor status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- HistoryStore ----

func (s *Store) AppendStatusHistory(ctx context.Context, e *domain.StatusHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var statusPtr *int
	if e.StatusCode != 0 {
		statusPtr = &e.StatusCode
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO status_history
		   (id, monitor_id, checked_at, status, response_time_ms, status_code, error)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.MonitorID), e.Timestamp, string(e.Status), toMS(e.ResponseTime), statusPtr, e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ---- ChannelStore ----

func (s *Store) ListEnabledChannels(ctx context.Context, id domain.MonitorID) ([]domain.NotificationChannel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, name, config, enabled, monitor_ids
		   FROM channels
		  WHERE enabled
		    AND (jsonb_array_length(monitor_ids) = 0 OR monitor_ids ? $1)
		  ORDER BY id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationChannel
	for rows.Next() {
		var (
			c        domain.NotificationChannel
			typ      string
			cfg, ids []byte
		)
		if err := rows.Scan(&c.ID, &typ, &c.Name, &cfg, &c.Enabled, &ids); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.Type = domain.ChannelType(typ)
		if err := json.Unmarshal(cfg, &c.Config); err != nil {
			return nil, fmt.Errorf("decode channel config: %w", err)
		}
		if err := json.Unmarshal(ids, &c.MonitorIDs); err != nil {
			return nil, fmt.Errorf("decode channel monitors: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- Admin ----

func (s *Store) UpsertMonitor(ctx context.Context, m domain.Monitor) error {
	cfg, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode monitor: %w", err)
	}
	var lastChecked *time.Time
	if !m.LastChecked.IsZero() {
		lastChecked = &m.LastChecked
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO monitors
		   (id, name, type, target, config, active, status, last_checked, response_time_ms, check_count, fail_count, uptime)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (id) DO UPDATE SET
		   name=EXCLUDED.name, type=EXCLUDED.type, target=EXCLUDED.target, config=EXCLUDED.config,
		   active=EXCLUDED.active, status=EXCLUDED.status, last_checked=EXCLUDED.last_checked,
		   response_time_ms=EXCLUDED.response_time_ms, check_count=EXCLUDED.check_count,
		   fail_count=EXCLUDED.fail_count, uptime=EXCLUDED.uptime, updated_at=now()`,
		string(m.ID), m.Name, string(m.Type), m.Target, cfg, m.Active, string(m.Status), lastChecked,
		toMS(m.LastResponseTime), m.CheckCount, m.FailCount, m.Uptime)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m, err := scanMonitor(s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id=$1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id=$1`, string(id))
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO channels (id, type, name, config, enabled, monitor_ids)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET
		   type=EXCLUDED.type, name=EXCLUDED.name, config=EXCLUDED.config,
		   enabled=EXCLUDED.enabled, monitor_ids=EXCLUDED.monitor_ids`,
		c.ID, string(c.Type), c.Name, cfg, c.Enabled, idsJSON)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (s *Store) ListStatusHistory(ctx context.Context, id domain.MonitorID, limit int) ([]domain.StatusHistoryEntry, error) {
	q := `SELECT id, checked_at, status, response_time_ms, status_code, error
	        FROM status_history
	       WHERE monitor_id=$1
	       ORDER BY checked_at DESC`
	args := []any{string(id)}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusHistoryEntry
	for rows.Next() {
		var (
			e        domain.StatusHistoryEntry
			status   string
			respMS   float64
			httpNull sql.NullInt32
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &status, &respMS, &httpNull, &e.Error); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.MonitorID = id
		e.Status = domain.Status(status)
		e.ResponseTime = fromMS(respMS)
		e.Timestamp = e.Timestamp.UTC()
		if httpNull.Valid {
			e.StatusCode = int(httpNull.Int32)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
