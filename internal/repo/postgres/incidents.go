package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

const uniqueViolation = "23505"

const incidentColumns = `id, monitor_id, title, description, status, severity, start_time, end_time, duration_ns, updates`

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc      domain.Incident
		monID    string
		status   string
		severity string
		endTime  *time.Time
		durNS    int64
		updates  []byte
	)
	if err := row.Scan(&inc.ID, &monID, &inc.Title, &inc.Description, &status, &severity,
		&inc.StartTime, &endTime, &durNS, &updates); err != nil {
		return nil, err
	}
	inc.MonitorID = domain.MonitorID(monID)
	inc.Status = domain.IncidentStatus(status)
	inc.Severity = domain.Severity(severity)
	inc.StartTime = inc.StartTime.UTC()
	if endTime != nil {
		t := endTime.UTC()
		inc.EndTime = &t
	}
	inc.Duration = time.Duration(durNS)
	if err := json.Unmarshal(updates, &inc.Updates); err != nil {
		return nil, fmt.Errorf("decode incident updates: %w", err)
	}
	return &inc, nil
}

func (s *Store) FindOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	inc, err := scanIncident(s.pool.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id=$1 AND status <> 'resolved'`, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO incidents (id, monitor_id, title, description, status, severity, start_time, end_time, duration_ns, updates)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		inc.ID, string(inc.MonitorID), inc.Title, inc.Description, string(inc.Status), string(inc.Severity),
		inc.StartTime, inc.EndTime, int64(inc.Duration), body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", repo.ErrIncidentOpen
		}
		return "", fmt.Errorf("insert incident: %w", err)
	}
	return inc.ID, nil
}

func (s *Store) UpdateIncident(ctx context.Context, id string, p domain.IncidentPatch) error {
	var status *string
	if p.Status != nil {
		v := string(*p.Status)
		status = &v
	}
	var dur *int64
	if p.Duration != nil {
		v := int64(*p.Duration)
		dur = &v
	}
	appended := p.AppendUpdates
	if appended == nil {
		appended = []domain.IncidentUpdate{}
	}
	body, err := json.Marshal(appended)
	if err != nil {
		return fmt.Errorf("encode incident updates: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents
		    SET status      = COALESCE($2, status),
		        end_time    = COALESCE($3, end_time),
		        duration_ns = COALESCE($4, duration_ns),
		        updates     = updates || $5::jsonb
		  WHERE id=$1`,
		id, status, p.EndTime, dur, string(body))
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+incidentColumns+`
		   FROM incidents
		  WHERE monitor_id=$1
		  ORDER BY start_time, created_at`, string(id))
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
